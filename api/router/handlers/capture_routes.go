package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterCaptureRoutes(r chi.Router) {
	r.Get("/requests", GetCapturedRequestsHandler)
	r.Delete("/requests", ClearCapturedRequestsHandler)
	r.Get("/requests/stats", GetCaptureStatsHandler)

	r.Route("/requests/{requestID}", func(sub chi.Router) {
		sub.Get("/", GetCapturedRequestDetailHandler)
		sub.Get("/curl", GetCapturedRequestCurlHandler)
		sub.Post("/replay", ReplayCapturedRequestHandler)
	})

	r.Get("/events", WaitForCaptureEventsHandler)
}
