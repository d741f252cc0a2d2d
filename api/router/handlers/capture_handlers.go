package handlers

import (
	"crypto/tls"
	"net/http"
	"strconv"
	"time"

	"apiwatch/config"
	"apiwatch/core"
	"apiwatch/logger"
	"apiwatch/models"

	"github.com/go-chi/chi/v5"
)

// GetCapturedRequestsHandler lists captured records, most recent first.
// Supports errors_only, domain and limit query filters.
func GetCapturedRequestsHandler(w http.ResponseWriter, r *http.Request) {
	records := session.Snapshot()

	errorsOnly := r.URL.Query().Get("errors_only") == "true"
	domain := r.URL.Query().Get("domain")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			logger.Error("GetCapturedRequestsHandler: Invalid limit '%s'", limitStr)
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	filtered := make([]models.CapturedRequest, 0, len(records))
	for _, rec := range records {
		if errorsOnly && !rec.IsError && !rec.IsValidationError {
			continue
		}
		if domain != "" && rec.Domain != domain {
			continue
		}
		filtered = append(filtered, rec)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": filtered,
		"total":    len(filtered),
		"revision": session.Revision(),
	})
}

func ClearCapturedRequestsHandler(w http.ResponseWriter, r *http.Request) {
	session.Clear()
	logger.Info("ClearCapturedRequestsHandler: capture log cleared.")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func GetCaptureStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.Stats())
}

func GetCapturedRequestDetailHandler(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rec, ok := findRecordByID(requestID)
	if !ok {
		writeError(w, http.StatusNotFound, "Captured request not found: "+requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetCapturedRequestCurlHandler renders a stored record as a curl command,
// with the active rewrite rules applied to the URL.
func GetCapturedRequestCurlHandler(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rec, ok := findRecordByID(requestID)
	if !ok {
		writeError(w, http.StatusNotFound, "Captured request not found: "+requestID)
		return
	}

	opts := core.DefaultCurlOptions()
	if r.URL.Query().Get("headers") == "false" {
		opts.IncludeHeaders = false
	}
	if r.URL.Query().Get("body") == "false" {
		opts.IncludeBody = false
	}
	if r.URL.Query().Get("follow") == "true" {
		opts.FollowRedirects = true
	}

	cfg := session.Config()
	command := core.BuildCurlCommand(rec, opts, cfg.RewriteRules)
	writeJSON(w, http.StatusOK, map[string]string{"command": command})
}

// ReplayCapturedRequestHandler re-issues a stored record and returns the
// live response. The replay runs synchronously within the configured timeout.
func ReplayCapturedRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rec, ok := findRecordByID(requestID)
	if !ok {
		writeError(w, http.StatusNotFound, "Captured request not found: "+requestID)
		return
	}

	timeout := time.Duration(config.AppConfig.Replay.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if config.AppConfig.Replay.SkipTLSVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	cfg := session.Config()
	result := core.ReplayRequest(r.Context(), client, rec, cfg.RewriteRules)
	if result.Error != "" {
		logger.Error("ReplayCapturedRequestHandler: replay of %s failed: %s", requestID, result.Error)
	}
	writeJSON(w, http.StatusOK, result)
}

// WaitForCaptureEventsHandler long-polls for capture log changes. The caller
// passes the last revision it saw; the handler returns as soon as the session
// advances past it, or with the current revision when the client gives up.
func WaitForCaptureEventsHandler(w http.ResponseWriter, r *http.Request) {
	since := uint64(0)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := strconv.ParseUint(sinceStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since parameter")
			return
		}
		since = parsed
	}

	revision := session.WaitForChange(r.Context(), since)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision": revision,
		"stats":    session.Stats(),
	})
}

func findRecordByID(id string) (models.CapturedRequest, bool) {
	for _, rec := range session.Snapshot() {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.CapturedRequest{}, false
}
