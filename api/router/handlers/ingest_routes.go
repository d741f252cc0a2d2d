package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterIngestRoutes(r chi.Router) {
	r.Post("/ingest", IngestHandler)
}
