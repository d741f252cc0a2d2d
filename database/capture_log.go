package database

import (
	"encoding/json"
	"fmt"

	"apiwatch/logger"
	"apiwatch/models"
)

// SaveCapturedRequests replaces the persisted capture snapshot with the given
// records. Position preserves the in-memory ordering (0 is most recent).
func SaveCapturedRequests(records []models.CapturedRequest) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin capture snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM captured_requests"); err != nil {
		return fmt.Errorf("failed to clear captured_requests: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO captured_requests (
		id, position, url, method, status, status_text,
		request_headers, response_headers, request_body, response_body,
		timestamp, duration_ms, domain, is_error, is_validation_error, error_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare capture insert statement: %w", err)
	}
	defer stmt.Close()

	for pos, rec := range records {
		reqHeadersJSON, _ := json.Marshal(rec.RequestHeaders)
		respHeadersJSON, _ := json.Marshal(rec.ResponseHeaders)
		_, err := stmt.Exec(
			rec.ID, pos, rec.URL, rec.Method, rec.Status, rec.StatusText,
			string(reqHeadersJSON), string(respHeadersJSON), rec.RequestBody, rec.ResponseBody,
			rec.Timestamp, rec.Duration, rec.Domain, rec.IsError, rec.IsValidationError, rec.ErrorType,
		)
		if err != nil {
			return fmt.Errorf("failed to insert captured request %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit capture snapshot: %w", err)
	}
	return nil
}

// LoadCapturedRequests restores the persisted capture snapshot, most recent
// first.
func LoadCapturedRequests() ([]models.CapturedRequest, error) {
	rows, err := DB.Query(`SELECT
		id, url, method, status, status_text,
		request_headers, response_headers, request_body, response_body,
		timestamp, duration_ms, domain, is_error, is_validation_error, error_type
	FROM captured_requests ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query captured_requests: %w", err)
	}
	defer rows.Close()

	var records []models.CapturedRequest
	for rows.Next() {
		var rec models.CapturedRequest
		var reqHeadersJSON, respHeadersJSON string
		if err := rows.Scan(
			&rec.ID, &rec.URL, &rec.Method, &rec.Status, &rec.StatusText,
			&reqHeadersJSON, &respHeadersJSON, &rec.RequestBody, &rec.ResponseBody,
			&rec.Timestamp, &rec.Duration, &rec.Domain, &rec.IsError, &rec.IsValidationError, &rec.ErrorType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan captured request row: %w", err)
		}
		if reqHeadersJSON != "" {
			if err := json.Unmarshal([]byte(reqHeadersJSON), &rec.RequestHeaders); err != nil {
				logger.Error("LoadCapturedRequests: bad request headers JSON for %s: %v", rec.ID, err)
			}
		}
		if respHeadersJSON != "" {
			if err := json.Unmarshal([]byte(respHeadersJSON), &rec.ResponseHeaders); err != nil {
				logger.Error("LoadCapturedRequests: bad response headers JSON for %s: %v", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating captured request rows: %w", err)
	}
	return records, nil
}

// Store adapts the package-level persistence functions to the session's
// storage interface.
type Store struct{}

func (Store) SaveCapturedRequests(records []models.CapturedRequest) error {
	return SaveCapturedRequests(records)
}

func (Store) SaveMonitorConfig(cfg models.MonitorConfig) error {
	return SetMonitorConfig(cfg)
}
