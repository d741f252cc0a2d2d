package handlers

import (
	"encoding/json"
	"net/http"

	"apiwatch/core"
	"apiwatch/logger"
	"apiwatch/models"
)

// session is the shared capture session all handlers operate on. Set once at
// router construction, before any request is served.
var session *core.Session

func SetSession(s *core.Session) {
	session = s
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}
