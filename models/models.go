package models

import "strings"

// Settings keys for the app_settings key-value store.
const (
	MonitorConfigKey = "monitor_config"
)

// Body sentinels. A captured record whose body could not be read carries one of
// these bracketed markers instead of real content. The request-body markers are
// written by the capture sources themselves and arrive as wire values in their
// submissions. Sentinels are never treated as usable bodies by the validator,
// the replayer, or the reconciler.
const (
	SentinelLifecycleNoBody = "[response body unavailable to lifecycle observer]"
	SentinelNetworkError    = "[network error, no response body]"
	SentinelBodyReadFailed  = "[failed to read response body]"
	SentinelUnparsableBody  = "[unparsable request body]"
	SentinelNonTextBody     = "[non-text request body]"
)

// IsSentinelBody reports whether s is a placeholder marker rather than real
// body content. Markers are fully bracketed strings; an empty body is not a
// sentinel. JSON array bodies also match and are treated as markers.
func IsSentinelBody(s string) bool {
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// IsLifecycleSentinel reports whether s is the specific marker the lifecycle
// observer (Source A) writes in place of a response body. The reconciler's
// replacement rule keys on this exact prefix.
func IsLifecycleSentinel(s string) bool {
	return strings.HasPrefix(s, SentinelLifecycleNoBody)
}

// CapturedRequest is the canonical record of one logical network request after
// reconciliation. url, method and id are immutable once assigned; status fields
// are set at completion. Timestamp and Duration are milliseconds.
type CapturedRequest struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Method            string            `json:"method"`
	Status            int               `json:"status"`
	StatusText        string            `json:"statusText,omitempty"`
	RequestHeaders    map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders   map[string]string `json:"responseHeaders,omitempty"`
	RequestBody       string            `json:"requestBody,omitempty"`
	ResponseBody      string            `json:"responseBody,omitempty"`
	Timestamp         int64             `json:"timestamp"`
	Duration          int64             `json:"duration"`
	Domain            string            `json:"domain"`
	IsError           bool              `json:"isError"`
	IsValidationError bool              `json:"isValidationError,omitempty"`
	ErrorType         string            `json:"errorType,omitempty"`
}

// ValidationRule compares one field of a JSON response body against an
// expected value. Disabled rules are inert.
type ValidationRule struct {
	Key           string `json:"key"`
	ExpectedValue string `json:"expectedValue"`
	Operator      string `json:"operator" enum:"equals,not_equals,contains,not_contains"`
	Enabled       bool   `json:"enabled"`
}

// RewriteRule is a literal URL prefix substitution. First enabled match wins.
type RewriteRule struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Enabled bool   `json:"enabled"`
}

// DomainScope gates whether capture is active on a given page at all. Entries
// may be exact hosts or *.base wildcards.
type DomainScope struct {
	Enabled bool     `json:"enabled"`
	Domains []string `json:"domains"`
}

// MonitorConfig is the active rule set. It is loaded wholesale and replaced
// wholesale on update; no partial mutation.
type MonitorConfig struct {
	APIPrefixes        []string         `json:"apiPrefixes"`
	DomainScope        DomainScope      `json:"domainScope"`
	ValidationRules    []ValidationRule `json:"validationRules"`
	RewriteRules       []RewriteRule    `json:"rewriteRules"`
	MaxRecords         int              `json:"maxRecords"`
	OnlyRecordFetchXHR bool             `json:"onlyRecordFetchXHR"`
	EnableConsoleLog   bool             `json:"enableConsoleLog"`
}

// DefaultMaxRecords bounds the canonical collection when MonitorConfig does
// not specify a cap.
const DefaultMaxRecords = 1000

// EffectiveMaxRecords returns the configured cap, or DefaultMaxRecords when
// the config carries no positive value.
func (c MonitorConfig) EffectiveMaxRecords() int {
	if c.MaxRecords > 0 {
		return c.MaxRecords
	}
	return DefaultMaxRecords
}

// EnabledValidationRules filters the rule list down to enabled entries.
func (c MonitorConfig) EnabledValidationRules() []ValidationRule {
	var enabled []ValidationRule
	for _, r := range c.ValidationRules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled
}

// CaptureStats is the aggregate computed on demand for UI consumers.
type CaptureStats struct {
	Total  int `json:"total"`
	Errors int `json:"errors"`
}

// ErrorResponse is the standard JSON error envelope returned by API handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
