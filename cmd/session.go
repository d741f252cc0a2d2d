package cmd

import (
	"fmt"
	"time"

	"apiwatch/config"
	"apiwatch/core"
	"apiwatch/database"
	"apiwatch/logger"
	"apiwatch/models"
)

// applyDefaultMaxRecords fills in the configured fallback cap when the stored
// monitor config carries no positive maxRecords of its own.
func applyDefaultMaxRecords(cfg models.MonitorConfig, fallback int) models.MonitorConfig {
	if cfg.MaxRecords <= 0 && fallback > 0 {
		cfg.MaxRecords = fallback
	}
	return cfg
}

// newCaptureSession builds the shared capture session from the persisted
// monitor config and capture snapshot.
func newCaptureSession() (*core.Session, error) {
	cfg, err := database.GetMonitorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load monitor config: %w", err)
	}
	cfg = applyDefaultMaxRecords(cfg, config.AppConfig.Capture.DefaultMaxRecords)

	window := time.Duration(config.AppConfig.Capture.CorrelationWindowMS) * time.Millisecond
	session := core.NewSession(cfg, database.Store{}, window)

	records, err := database.LoadCapturedRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to load capture snapshot: %w", err)
	}
	session.Restore(records)
	if len(records) > 0 {
		logger.Info("Restored %d captured requests from database.", len(records))
	}
	return session, nil
}
