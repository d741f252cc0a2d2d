package models

import (
	"encoding/json"
	"fmt"
)

// Ingest message types. The two capture sources submit observations to the
// coordinator as tagged messages; the set is closed and dispatch is exhaustive.
const (
	MsgRequestStarted   = "request_started"
	MsgHeadersSent      = "headers_sent"
	MsgRequestCompleted = "request_completed"
	MsgRequestFailed    = "request_failed"
	MsgPageObservation  = "page_observation"
)

// IngestEnvelope is the wire form of a source submission: a type discriminator
// plus the type-specific payload.
type IngestEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RequestStarted opens a lifecycle observation (Source A). RequestID is a
// source-local transient id, not reused across requests.
type RequestStarted struct {
	RequestID   string `json:"requestId"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	RequestBody string `json:"requestBody,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// HeadersSent attaches the outgoing request headers to a pending lifecycle
// observation.
type HeadersSent struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

// RequestCompleted terminates a lifecycle observation with a response status.
// Source A cannot see response bodies, so none is carried here.
type RequestCompleted struct {
	RequestID       string            `json:"requestId"`
	Status          int               `json:"status"`
	StatusText      string            `json:"statusText,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Timestamp       int64             `json:"timestamp"`
}

// RequestFailed terminates a lifecycle observation with a transport-level
// error. Error is the platform's error string (e.g. "net::ERR_TIMED_OUT").
type RequestFailed struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeIngestPayload decodes the payload of an envelope into the concrete
// message for its type. Unknown types are rejected at decode, never silently
// dropped.
func DecodeIngestPayload(env IngestEnvelope) (interface{}, error) {
	switch env.Type {
	case MsgRequestStarted:
		var m RequestStarted
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
		return m, nil
	case MsgHeadersSent:
		var m HeadersSent
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
		return m, nil
	case MsgRequestCompleted:
		var m RequestCompleted
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
		return m, nil
	case MsgRequestFailed:
		var m RequestFailed
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
		return m, nil
	case MsgPageObservation:
		var m CapturedRequest
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown ingest message type %q", env.Type)
	}
}
