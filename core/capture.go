package core

import (
	"net/http"
	"strings"

	"apiwatch/logger"
	"apiwatch/models"

	"github.com/google/uuid"
)

// Capture source glue: shapes the raw observations the two sources submit into
// canonical records and hands them to the reconciliation logic. Source A
// (lifecycle observer) reports in three phases correlated by a transient id
// and can never see response bodies; Source B (page observer) reports complete
// exchanges including bodies. The two evaluate the rule set independently, so
// either may see a request the other filtered out.

// RequestStarted opens a pending lifecycle observation. Requests that match no
// configured API prefix are ignored at the door.
func (s *Session) RequestStarted(msg models.RequestStarted) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !MatchesAnyAPIPrefix(msg.URL, s.cfg.APIPrefixes) {
		return
	}
	if msg.RequestID == "" {
		return
	}

	ts := msg.Timestamp
	if ts == 0 {
		ts = s.now().UnixMilli()
	}
	s.pending[msg.RequestID] = &models.CapturedRequest{
		ID:          uuid.NewString(),
		URL:         msg.URL,
		Method:      msg.Method,
		RequestBody: msg.RequestBody,
		Timestamp:   ts,
		Domain:      ExtractDomain(msg.URL),
	}
	if s.cfg.EnableConsoleLog {
		logger.CaptureDebug("Source A: opened observation for %s %s", msg.Method, msg.URL)
	}
}

// HeadersSent attaches request headers to a pending observation. Unknown
// transient ids (filtered or already completed requests) are ignored.
func (s *Session) HeadersSent(msg models.HeadersSent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.pending[msg.RequestID]
	if !ok {
		return
	}
	info.RequestHeaders = msg.Headers
}

// RequestCompleted terminates a pending observation with a response status.
// The completion is a reconciliation candidate: if a correlated record already
// carries a real response body, the completion is dropped, because a lifecycle
// observation can never contribute a body and is strictly less valuable.
func (s *Session) RequestCompleted(msg models.RequestCompleted) {
	s.mu.Lock()
	info, ok := s.pending[msg.RequestID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, msg.RequestID)

	completedAt := msg.Timestamp
	if completedAt == 0 {
		completedAt = s.now().UnixMilli()
	}

	rec := *info
	rec.Status = msg.Status
	rec.StatusText = msg.StatusText
	if rec.StatusText == "" {
		rec.StatusText = statusText(msg.Status)
	}
	rec.ResponseHeaders = msg.ResponseHeaders
	rec.ResponseBody = models.SentinelLifecycleNoBody
	rec.Duration = completedAt - rec.Timestamp
	rec.IsError = rec.Status >= 400 || rec.Status == 0

	if idx := s.findBodyBearingLocked(rec.URL, rec.Timestamp); idx >= 0 {
		if s.cfg.EnableConsoleLog {
			logger.CaptureDebug("Source A: dropping completion for %s, a body-bearing record already exists", rec.URL)
		}
		s.mu.Unlock()
		return
	}

	s.insertLocked(rec)
	if s.cfg.EnableConsoleLog {
		logger.CaptureInfo("Source A: recorded %s %s -> %d (no body)", rec.Method, rec.URL, rec.Status)
	}
	s.mu.Unlock()
	s.flush()
}

// RequestFailed terminates a pending observation with a transport failure.
// Status 0 marks the transport-level failure; ErrorType classifies it.
func (s *Session) RequestFailed(msg models.RequestFailed) {
	s.mu.Lock()
	info, ok := s.pending[msg.RequestID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, msg.RequestID)

	failedAt := msg.Timestamp
	if failedAt == 0 {
		failedAt = s.now().UnixMilli()
	}

	rec := *info
	rec.Status = 0
	rec.StatusText = msg.Error
	rec.ResponseHeaders = map[string]string{}
	rec.ResponseBody = models.SentinelNetworkError
	rec.Duration = failedAt - rec.Timestamp
	rec.IsError = true
	rec.ErrorType = classifyTransportError(msg.Error)

	s.insertLocked(rec)
	if s.cfg.EnableConsoleLog {
		logger.CaptureInfo("Source A: recorded failure %s %s (%s)", rec.Method, rec.URL, rec.ErrorType)
	}
	s.mu.Unlock()
	s.flush()
}

// RecordFromSourceB submits a complete page-world observation. The record is
// gated by the API prefix rules, validated when it carries a real body and
// enabled rules exist, and then either replaces a correlated lifecycle-only
// record in place or is inserted as new.
func (s *Session) RecordFromSourceB(rec models.CapturedRequest) {
	cfg := s.Config()
	if !MatchesAnyAPIPrefix(rec.URL, cfg.APIPrefixes) {
		if cfg.EnableConsoleLog {
			logger.CaptureDebug("Source B: %s matches no API prefix, skipping", rec.URL)
		}
		return
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().UnixMilli()
	}
	if rec.Domain == "" {
		rec.Domain = ExtractDomain(rec.URL)
	}
	if rec.StatusText == "" && rec.Status != 0 {
		rec.StatusText = statusText(rec.Status)
	}
	if !rec.IsError {
		rec.IsError = rec.Status >= 400 || rec.Status == 0
	}

	if rec.ResponseBody != "" && !models.IsSentinelBody(rec.ResponseBody) {
		if enabled := cfg.EnabledValidationRules(); len(enabled) > 0 {
			outcome := EvaluateResponse(rec.ResponseBody, enabled)
			if !outcome.Valid {
				rec.IsValidationError = true
				rec.IsError = true
				if cfg.EnableConsoleLog {
					logger.CaptureInfo("Source B: validation failed for %s: %s", rec.URL, outcome.Reason)
				}
			}
		}
	}

	s.mu.Lock()
	if idx := s.findLifecycleSentinelLocked(rec.URL, rec.Timestamp); idx >= 0 {
		s.replaceLocked(idx, rec)
		if s.cfg.EnableConsoleLog {
			logger.CaptureInfo("Source B: replaced lifecycle record for %s with body-bearing record", rec.URL)
		}
	} else {
		s.insertLocked(rec)
		if s.cfg.EnableConsoleLog {
			logger.CaptureInfo("Source B: recorded %s %s -> %d", rec.Method, rec.URL, rec.Status)
		}
	}
	s.mu.Unlock()
	s.flush()
}

// Submit dispatches a decoded ingest message to the matching capture path.
// The message set is closed; anything else is reported to the caller by way of
// a false return.
func (s *Session) Submit(msg interface{}) bool {
	switch m := msg.(type) {
	case models.RequestStarted:
		s.RequestStarted(m)
	case models.HeadersSent:
		s.HeadersSent(m)
	case models.RequestCompleted:
		s.RequestCompleted(m)
	case models.RequestFailed:
		s.RequestFailed(m)
	case models.CapturedRequest:
		s.RecordFromSourceB(m)
	default:
		return false
	}
	return true
}

// statusText maps a status code to its standard reason phrase, with "Unknown"
// for codes the platform does not know.
func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}

// classifyTransportError buckets a platform error string into the error
// taxonomy. Anything unrecognized is a plain network failure.
func classifyTransportError(errStr string) string {
	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed_out") || strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "abort") || strings.Contains(lower, "cancel"):
		return "abort"
	case strings.Contains(lower, "server"):
		return "server"
	default:
		return "network"
	}
}
