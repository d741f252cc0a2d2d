package cmd

import (
	"fmt"

	"apiwatch/config"
	"apiwatch/core"
	"apiwatch/logger"

	"github.com/spf13/cobra"
)

var standaloneProxyPort string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manages the MITM capture proxy (can be run standalone or as part of 'start')",
}

var proxyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the MITM capture proxy",
	Long: `Starts the Man-in-the-Middle proxy that records requests to monitored
API prefixes, including full response bodies.
Configure your browser or system to use this proxy. The CA certificate
(apiwatch-ca.crt) must be generated (using 'proxy init-ca') and trusted by
your client.`,
	Run: func(cmd *cobra.Command, args []string) {
		portToUse := standaloneProxyPort
		if !cmd.Flags().Changed("port") {
			portToUse = config.AppConfig.Proxy.Port
			logger.Debug("Using proxy port from config: %s", portToUse)
		}
		if portToUse == "" {
			portToUse = "8689"
		}

		caCertPath := config.AppConfig.Proxy.CACertPath
		caKeyPath := config.AppConfig.Proxy.CAKeyPath
		if caCertPath == "" || caKeyPath == "" {
			logger.Error("Proxy CA certificate or key path not configured. Check config or run 'proxy init-ca' first.")
			return
		}
		logger.CaptureInfo("Proxy using CA Cert: %s, CA Key: %s", caCertPath, caKeyPath)

		session, err := newCaptureSession()
		if err != nil {
			logger.Fatal("Proxy Command: %v", err)
			return
		}

		if err := core.StartCaptureProxy(portToUse, session, caCertPath, caKeyPath); err != nil {
			logger.CaptureError("Error starting proxy: %v", err)
		}
	},
}

var proxyInitCACmd = &cobra.Command{
	Use:   "init-ca",
	Short: "Initializes (generates) the root CA certificate and key for the capture proxy",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Initializing Proxy CA...")
		certPath := config.AppConfig.Proxy.CACertPath
		keyPath := config.AppConfig.Proxy.CAKeyPath

		if certPath == "" || keyPath == "" {
			logger.Error("CA certificate or key path is not defined in configuration.")
			return
		}

		if err := core.GenerateAndSaveCA(certPath, keyPath); err != nil {
			fmt.Printf("Error generating CA. Check logs for details: %v\n", err)
			return
		}
		fmt.Println("Proxy CA initialized. Trust the certificate in your client to intercept HTTPS.")
	},
}

func init() {
	proxyStartCmd.Flags().StringVarP(&standaloneProxyPort, "port", "p", "8689", "Port for the proxy to listen on (if run standalone)")
	proxyCmd.AddCommand(proxyStartCmd)
	proxyCmd.AddCommand(proxyInitCACmd)
	rootCmd.AddCommand(proxyCmd)
}
