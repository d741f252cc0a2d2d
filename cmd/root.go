package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"apiwatch/config"
	"apiwatch/database"
	"apiwatch/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile            string
	dbPath             string
	appLogPathFlag     string
	captureLogPathFlag string
	logLevelFlag       string
)

func expandTildeCmd(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

var rootCmd = &cobra.Command{
	Use:   "apiwatch",
	Short: "Capture, validate and replay API traffic",
	Long: `apiwatch records HTTP requests against monitored API prefixes from
multiple capture sources, reconciles their observations into a single
capture log, validates JSON response bodies against configurable rules,
and replays stored requests on demand.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile, appLogPathFlag, captureLogPathFlag, logLevelFlag); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		finalDBPath := dbPath
		if finalDBPath == "" {
			finalDBPath = config.AppConfig.Database.Path
		}
		if expanded, err := expandTildeCmd(finalDBPath); err == nil {
			finalDBPath = expanded
		} else {
			logger.Error("Error expanding tilde in database path '%s': %v. Using original.", finalDBPath, err)
		}
		if finalDBPath == "" {
			logger.Error("Database path is empty after checking flag and config! Falling back to 'apiwatch.db' in CWD.")
			finalDBPath = "apiwatch.db"
		}

		if err := database.InitDB(finalDBPath); err != nil {
			return fmt.Errorf("failed to initialize database at %s: %w", finalDBPath, err)
		}

		isSuppressedCmd := cmd.Name() == "completion" ||
			cmd.Name() == cobra.ShellCompRequestCmd ||
			cmd.Name() == cobra.ShellCompNoDescRequestCmd ||
			cmd.Name() == "start"
		if !isSuppressedCmd {
			logger.Info("Database initialized at: %s", finalDBPath)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/apiwatch/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "path to SQLite database file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&appLogPathFlag, "app-log", "", "path for the application log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&captureLogPathFlag, "capture-log", "", "path for the capture log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: DEBUG, INFO, ERROR (overrides config/default)")
}
