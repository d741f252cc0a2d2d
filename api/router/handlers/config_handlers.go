package handlers

import (
	"encoding/json"
	"net/http"

	"apiwatch/logger"
	"apiwatch/models"
)

func GetMonitorConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.Config())
}

// SetMonitorConfigHandler replaces the monitor configuration wholesale. A
// lowered record cap takes effect immediately, trimming the oldest entries.
func SetMonitorConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg models.MonitorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		logger.Error("SetMonitorConfigHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	for _, rule := range cfg.ValidationRules {
		switch rule.Operator {
		case "equals", "not_equals", "contains", "not_contains":
		default:
			writeError(w, http.StatusBadRequest, "Unknown validation operator: "+rule.Operator)
			return
		}
	}

	session.ReplaceConfig(cfg)
	logger.Info("SetMonitorConfigHandler: monitor config replaced (%d prefixes, %d validation rules, max records %d).",
		len(cfg.APIPrefixes), len(cfg.ValidationRules), cfg.EffectiveMaxRecords())
	writeJSON(w, http.StatusOK, session.Config())
}
