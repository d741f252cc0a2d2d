package core

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"apiwatch/logger"
	"apiwatch/models"

	"github.com/andybalholm/brotli"
)

// ReplayResult reports the outcome of re-issuing a captured request. Distinct
// from capture records: replay failures are user-facing and carry an explicit
// error message alongside status and duration.
type ReplayResult struct {
	Success         bool              `json:"success"`
	Status          int               `json:"status,omitempty"`
	StatusText      string            `json:"statusText,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	Error           string            `json:"error,omitempty"`
	DurationMs      int64             `json:"duration"`
}

// Headers the platform manages itself; re-sending them breaks or distorts the
// replayed request.
var replaySkipHeaders = map[string]bool{
	"host":            true,
	"connection":      true,
	"content-length":  true,
	"user-agent":      true,
	"origin":          true,
	"referer":         true,
	"accept-encoding": true,
}

// Methods whose captured body is re-sent on replay.
var bodyMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// ReplayRequest re-issues a captured request through client, applying the
// rewrite rules to the URL first. Sentinel request bodies are never re-sent.
// Gzip- and brotli-encoded response bodies are decoded before being reported.
func ReplayRequest(ctx context.Context, client *http.Client, rec models.CapturedRequest, rewriteRules []models.RewriteRule) ReplayResult {
	start := time.Now()

	finalURL := RewriteURL(rec.URL, rewriteRules)

	var body io.Reader
	if rec.RequestBody != "" && bodyMethods[rec.Method] && !models.IsSentinelBody(rec.RequestBody) {
		body = strings.NewReader(rec.RequestBody)
	}

	req, err := http.NewRequestWithContext(ctx, rec.Method, finalURL, body)
	if err != nil {
		return ReplayResult{
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	for name, value := range rec.RequestHeaders {
		if replaySkipHeaders[strings.ToLower(name)] {
			continue
		}
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ReplayResult{
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	responseHeaders := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[name] = values[0]
		}
	}

	bodyText, readErr := readDecodedBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if readErr != nil {
		logger.Error("ReplayRequest: failed to read response body for %s: %v", finalURL, readErr)
		bodyText = models.SentinelBodyReadFailed
	}

	return ReplayResult{
		Success:         true,
		Status:          resp.StatusCode,
		StatusText:      statusText(resp.StatusCode),
		ResponseHeaders: responseHeaders,
		ResponseBody:    bodyText,
		DurationMs:      time.Since(start).Milliseconds(),
	}
}

// readDecodedBody reads a response body, decompressing gzip and brotli
// streams. Unknown encodings are read as-is.
func readDecodedBody(r io.Reader, contentEncoding string) (string, error) {
	var raw []byte
	var err error
	switch strings.ToLower(contentEncoding) {
	case "br":
		raw, err = io.ReadAll(brotli.NewReader(r))
	case "gzip":
		gzReader, gzErr := gzip.NewReader(r)
		if gzErr != nil {
			return "", gzErr
		}
		raw, err = io.ReadAll(gzReader)
		gzReader.Close()
	default:
		raw, err = io.ReadAll(r)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
