package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"apiwatch/logger"

	"github.com/spf13/viper"
)

type DefaultPaths struct {
	ConfigDir      string
	LogPathApp     string
	LogPathCapture string
	DBPath         string
	LogLevel       string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Proxy struct {
		Port       string `mapstructure:"port"`
		LogPath    string `mapstructure:"log_path"`
		CACertPath string `mapstructure:"ca_cert_path"`
		CAKeyPath  string `mapstructure:"ca_key_path"`
	} `mapstructure:"proxy"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Capture struct {
		CorrelationWindowMS int `mapstructure:"correlation_window_ms"`
		DefaultMaxRecords   int `mapstructure:"default_max_records"`
	} `mapstructure:"capture"`
	Replay struct {
		TimeoutSeconds int  `mapstructure:"timeout_seconds"`
		SkipTLSVerify  bool `mapstructure:"skip_tls_verify"`
	} `mapstructure:"replay"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "apiwatch")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathCapture = filepath.Join(logDir, "capture.log")
	paths.DBPath = filepath.Join(paths.ConfigDir, "apiwatch.db")
	paths.LogLevel = "INFO"
	return paths
}

// Init loads defaults, an optional YAML config file, and flag overrides into
// AppConfig, then re-initializes the global loggers with the resolved paths.
func Init(cfgFile string, flagAppLogPath, flagCaptureLogPath, flagLogLevel string) error {
	v := viper.New()

	defaults := GetDefaultConfigPaths()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8690")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("proxy.port", "8689")
	v.SetDefault("proxy.log_path", defaults.LogPathCapture)
	v.SetDefault("proxy.ca_cert_path", filepath.Join(defaults.ConfigDir, "apiwatch-ca.crt"))
	v.SetDefault("proxy.ca_key_path", filepath.Join(defaults.ConfigDir, "apiwatch-ca.key"))
	v.SetDefault("logging.level", defaults.LogLevel)
	v.SetDefault("capture.correlation_window_ms", 5000)
	v.SetDefault("capture.default_max_records", 1000)
	v.SetDefault("replay.timeout_seconds", 15)
	v.SetDefault("replay.skip_tls_verify", false)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults apply.
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appLogPath := AppConfig.Server.LogPath
	if flagAppLogPath != "" {
		appLogPath = flagAppLogPath
	}
	captureLogPath := AppConfig.Proxy.LogPath
	if flagCaptureLogPath != "" {
		captureLogPath = flagCaptureLogPath
	}
	level := AppConfig.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}

	if expanded, err := expandTilde(appLogPath); err == nil {
		appLogPath = expanded
	}
	if expanded, err := expandTilde(captureLogPath); err == nil {
		captureLogPath = expanded
	}

	if err := logger.InitGlobalLoggers(appLogPath, captureLogPath, level); err != nil {
		return fmt.Errorf("failed to initialize loggers: %w", err)
	}

	logger.Debug("Config initialized. DB: %s, server port: %s, proxy port: %s, correlation window: %dms",
		AppConfig.Database.Path, AppConfig.Server.Port, AppConfig.Proxy.Port, AppConfig.Capture.CorrelationWindowMS)
	return nil
}
