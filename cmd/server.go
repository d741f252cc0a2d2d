package cmd

import (
	"net/http"
	"strings"

	"apiwatch/api"
	"apiwatch/config"
	"apiwatch/core"
	"apiwatch/logger"

	"github.com/spf13/cobra"
)

var standaloneServerPort string

// buildServerMux wires the API router under /api and serves static files for
// everything else.
func buildServerMux(session *core.Session) *http.ServeMux {
	apiRouter := api.NewRouter(session)

	staticFileDir := "./static"
	fileServer := http.FileServer(http.Dir(staticFileDir))

	mainMux := http.NewServeMux()
	mainMux.Handle("/api/", http.StripPrefix("/api", apiRouter))
	mainMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			logger.Error("Request for %s reached root handler unexpectedly, passing to API router.", r.URL.Path)
			http.StripPrefix("/api", apiRouter).ServeHTTP(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
	return mainMux
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the coordinator API server (can be run standalone or as part of 'start')",
	Long: `Starts the HTTP server that receives capture source observations on
/api/ingest, serves the capture log, and handles curl export and replay.`,
	Run: func(cmd *cobra.Command, args []string) {
		portToUse := standaloneServerPort
		if !cmd.Flags().Changed("port") {
			portToUse = config.AppConfig.Server.Port
		}
		if portToUse == "" {
			portToUse = "8690"
		}

		session, err := newCaptureSession()
		if err != nil {
			logger.Fatal("Server Command: %v", err)
			return
		}

		mainMux := buildServerMux(session)
		logger.Info("Server Command: Listening on :%s", portToUse)
		if err := http.ListenAndServe(":"+portToUse, mainMux); err != nil {
			logger.Fatal("Could not start server: %v", err)
		}
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8690", "Port for the server to listen on (if run standalone)")
	rootCmd.AddCommand(serverCmd)
}
