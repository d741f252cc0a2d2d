package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"apiwatch/config"
	"apiwatch/core"
	"apiwatch/logger"

	"github.com/spf13/cobra"
)

var (
	startServerPort string
	startProxyPort  string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts all apiwatch services (coordinator API server and capture proxy)",
	Long: `Starts both the coordinator API server and the MITM capture proxy
concurrently, sharing one capture session so proxy captures and ingested
source observations reconcile against the same log.
Press Ctrl+C to gracefully shut down all services.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("--- Start Command: Run ---")

		actualServerPort := startServerPort
		if !cmd.Flags().Changed("server-port") {
			actualServerPort = config.AppConfig.Server.Port
		}
		if actualServerPort == "" {
			actualServerPort = "8690"
		}

		actualProxyPort := startProxyPort
		if !cmd.Flags().Changed("proxy-port") {
			actualProxyPort = config.AppConfig.Proxy.Port
		}
		if actualProxyPort == "" {
			actualProxyPort = "8689"
		}
		logger.Info("Start Command: Final ports determined - Server: %s, Proxy: %s", actualServerPort, actualProxyPort)

		session, err := newCaptureSession()
		if err != nil {
			logger.Fatal("Start Command: %v", err)
			return
		}

		var wg sync.WaitGroup
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			logger.Info("Start Command Goroutine(API): Attempting to start API server on port %s...", actualServerPort)

			server := &http.Server{
				Addr:    ":" + actualServerPort,
				Handler: buildServerMux(session),
			}

			go func() {
				<-parentCtx.Done()
				logger.Info("Start Command Goroutine(API): Shutdown signal received...")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Start Command Goroutine(API): Graceful shutdown failed: %v", err)
				} else {
					logger.Info("Start Command Goroutine(API): Gracefully stopped.")
				}
			}()

			logger.Info("Start Command Goroutine(API): Listening on :%s", actualServerPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Start Command Goroutine(API): ListenAndServe error: %v", err)
				cancel()
			}
			logger.Info("Start Command Goroutine(API): Finished.")
		}(ctx)

		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			logger.CaptureInfo("Start Command Goroutine(Proxy): Attempting to start capture proxy on port %s...", actualProxyPort)

			caCertPath := config.AppConfig.Proxy.CACertPath
			caKeyPath := config.AppConfig.Proxy.CAKeyPath
			if caCertPath == "" || caKeyPath == "" {
				logger.Error("Start Command Goroutine(Proxy): CA certificate or key path not configured. Check config or run 'proxy init-ca' first.")
				cancel()
				return
			}

			proxyErrChan := make(chan error, 1)
			go func() {
				proxyErrChan <- core.StartCaptureProxy(actualProxyPort, session, caCertPath, caKeyPath)
			}()

			select {
			case err := <-proxyErrChan:
				if err != nil {
					logger.Error("Start Command Goroutine(Proxy): core.StartCaptureProxy returned error: %v", err)
					cancel()
				}
			case <-parentCtx.Done():
				logger.CaptureInfo("Start Command Goroutine(Proxy): Shutdown signal received, proxy will stop with process.")
			}
			logger.CaptureInfo("Start Command Goroutine(Proxy): Finished.")
		}(ctx)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Start Command: Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
			logger.Info("Start Command: A service failed, shutting down...")
		}

		wg.Wait()
		logger.Info("Start Command: All services stopped.")
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8690", "Port for the API server")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "8689", "Port for the capture proxy")
	rootCmd.AddCommand(startCmd)
}
