package handlers

import (
	"encoding/json"
	"net/http"

	"apiwatch/logger"
	"apiwatch/models"
)

// IngestHandler accepts a single observation from a capture source. The
// envelope carries a type discriminator; unknown types are rejected so a
// misbehaving source fails loudly instead of being silently ignored.
func IngestHandler(w http.ResponseWriter, r *http.Request) {
	var env models.IngestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		logger.Error("IngestHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	msg, err := models.DecodeIngestPayload(env)
	if err != nil {
		logger.Error("IngestHandler: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := session.Submit(msg)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}
