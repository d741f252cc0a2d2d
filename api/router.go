package api

import (
	"net/http"

	"apiwatch/api/router/handlers"
	"apiwatch/core"
	"apiwatch/logger"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates and configures the API router. All registered paths are
// relative to the /api base path.
func NewRouter(session *core.Session) http.Handler {
	handlers.SetSession(session)

	r := chi.NewRouter()

	handlers.RegisterHealthRoutes(r)
	handlers.RegisterIngestRoutes(r)
	handlers.RegisterCaptureRoutes(r)
	handlers.RegisterConfigRoutes(r)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		logger.Error("API ROUTER: Unhandled route relative to /api: %s %s", req.Method, req.URL.Path)
		http.NotFound(w, req)
	})

	return r
}
