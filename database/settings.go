package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"apiwatch/logger"
	"apiwatch/models"
)

// GetSetting retrieves a specific setting value from the app_settings table.
func GetSetting(key string) (string, error) {
	var value string
	err := DB.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // Return empty string if not found, not an error
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting saves or updates a specific setting value in the app_settings table.
func SetSetting(key, value string) error {
	stmt, err := DB.Prepare("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare set setting statement for key '%s': %w", key, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(key, value)
	if err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// GetMonitorConfig loads the persisted monitor configuration. An empty or
// missing setting yields the zero configuration, not an error.
func GetMonitorConfig() (models.MonitorConfig, error) {
	var cfg models.MonitorConfig
	cfgJSON, err := GetSetting(models.MonitorConfigKey)
	if err != nil {
		return cfg, fmt.Errorf("failed to get monitor config setting: %w", err)
	}
	if cfgJSON == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		logger.Error("GetMonitorConfig: Error unmarshalling config JSON: %v. Stored value: %s", err, cfgJSON)
		return cfg, fmt.Errorf("failed to unmarshal monitor config: %w", err)
	}
	return cfg, nil
}

// SetMonitorConfig persists the monitor configuration as JSON.
func SetMonitorConfig(cfg models.MonitorConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor config to JSON: %w", err)
	}
	if err := SetSetting(models.MonitorConfigKey, string(cfgJSON)); err != nil {
		return fmt.Errorf("failed to save monitor config setting: %w", err)
	}
	return nil
}
