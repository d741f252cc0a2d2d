package cmd

import (
	"fmt"
	"testing"
	"time"

	"apiwatch/core"
	"apiwatch/models"
)

func TestApplyDefaultMaxRecords(t *testing.T) {
	tests := []struct {
		name     string
		stored   int
		fallback int
		want     int
	}{
		{"stored cap wins", 200, 50, 200},
		{"fallback fills empty config", 0, 50, 50},
		{"negative stored cap treated as unset", -1, 50, 50},
		{"no fallback leaves config unset", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := applyDefaultMaxRecords(models.MonitorConfig{MaxRecords: tt.stored}, tt.fallback)
			if cfg.MaxRecords != tt.want {
				t.Errorf("MaxRecords = %d, want %d", cfg.MaxRecords, tt.want)
			}
		})
	}
}

func TestConfiguredDefaultCapBoundsSession(t *testing.T) {
	cfg := applyDefaultMaxRecords(models.MonitorConfig{
		APIPrefixes: []string{"https://api.example.com/"},
	}, 2)

	session := core.NewSession(cfg, nil, 5000*time.Millisecond)

	var records []models.CapturedRequest
	for i := 0; i < 5; i++ {
		records = append(records, models.CapturedRequest{
			ID:        fmt.Sprintf("r-%d", i),
			URL:       fmt.Sprintf("https://api.example.com/v1/item/%d", i),
			Method:    "GET",
			Status:    200,
			Timestamp: int64(1000 + i),
		})
	}
	session.Restore(records)

	if got := len(session.Snapshot()); got != 2 {
		t.Errorf("restored snapshot length = %d, want the configured fallback cap of 2", got)
	}
}
