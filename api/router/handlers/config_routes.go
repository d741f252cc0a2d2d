package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterConfigRoutes(r chi.Router) {
	r.Route("/config", func(sub chi.Router) {
		sub.Get("/", GetMonitorConfigHandler)
		sub.Put("/", SetMonitorConfigHandler)
		sub.Post("/", SetMonitorConfigHandler)
	})
}
