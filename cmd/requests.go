package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"apiwatch/core"
	"apiwatch/database"
	"apiwatch/logger"
	"apiwatch/models"

	"github.com/spf13/cobra"
)

var (
	requestsListDomain     string
	requestsListErrorsOnly bool
	requestsListLimit      int
	requestsListJSON       bool
	requestsClearForce     bool
	curlNoHeaders          bool
	curlNoBody             bool
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Short:   "View and manage captured API requests",
	Long:    `Allows viewing, filtering, exporting as curl, and clearing the API requests recorded by the capture sources.`,
	Aliases: []string{"req"},
}

func loadSnapshotRecords() []models.CapturedRequest {
	records, err := database.LoadCapturedRequests()
	if err != nil {
		logger.Error("Failed to load capture snapshot: %v", err)
		fmt.Fprintln(os.Stderr, "Error retrieving captured requests from database.")
		os.Exit(1)
	}
	return records
}

var requestsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List captured requests, most recent first",
	Aliases: []string{"ls"},
	Example: `  # List the most recent captured requests
  apiwatch requests list

  # List only failed or invalid requests
  apiwatch requests list --errors-only

  # List requests for one API domain
  apiwatch requests list --domain api.example.com

  # Emit the raw records as JSON
  apiwatch requests list --json`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("Executing 'requests list' command")

		records := loadSnapshotRecords()

		filtered := []models.CapturedRequest{}
		for _, rec := range records {
			if requestsListErrorsOnly && !rec.IsError && !rec.IsValidationError {
				continue
			}
			if requestsListDomain != "" && rec.Domain != requestsListDomain {
				continue
			}
			filtered = append(filtered, rec)
			if requestsListLimit > 0 && len(filtered) >= requestsListLimit {
				break
			}
		}

		if requestsListJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(filtered); err != nil {
				logger.Error("Failed to encode records as JSON: %v", err)
				os.Exit(1)
			}
			return
		}

		if len(filtered) == 0 {
			fmt.Println("No matching captured requests found.")
			return
		}

		fmt.Println("Captured API Requests:")
		writer := new(tabwriter.Writer)
		writer.Init(os.Stdout, 0, 8, 1, '\t', 0)

		fmt.Fprintln(writer, "ID\tTIMESTAMP\tMETH\tURL\tSTATUS\tDURATION\tERR")
		fmt.Fprintln(writer, "--\t---------\t----\t---\t------\t--------\t---")

		for _, rec := range filtered {
			tsFormatted := "N/A"
			if rec.Timestamp > 0 {
				tsFormatted = time.UnixMilli(rec.Timestamp).Format("2006-01-02 15:04:05")
			}
			displayURL := rec.URL
			if len(displayURL) > 80 {
				displayURL = displayURL[:77] + "..."
			}
			errStr := ""
			if rec.IsValidationError {
				errStr = "validation"
			} else if rec.IsError {
				errStr = rec.ErrorType
				if errStr == "" {
					errStr = "error"
				}
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
				shortID(rec.ID), tsFormatted, rec.Method, displayURL, rec.Status, rec.Duration, errStr)
		}
		writer.Flush()

		fmt.Println("---")
		fmt.Printf("%d shown of %d stored records\n", len(filtered), len(records))
		logger.Info("Successfully listed %d captured requests", len(filtered))
	},
}

var requestsShowCmd = &cobra.Command{
	Use:   "show [request_id]",
	Short: "Show the full detail of one captured request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec, ok := findSnapshotRecord(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Captured request not found: %s\n", args[0])
			os.Exit(1)
		}

		fmt.Printf("ID:        %s\n", rec.ID)
		fmt.Printf("URL:       %s\n", rec.URL)
		fmt.Printf("Method:    %s\n", rec.Method)
		fmt.Printf("Status:    %d %s\n", rec.Status, rec.StatusText)
		fmt.Printf("Domain:    %s\n", rec.Domain)
		fmt.Printf("Timestamp: %s\n", time.UnixMilli(rec.Timestamp).Format(time.RFC3339))
		fmt.Printf("Duration:  %dms\n", rec.Duration)
		if rec.IsError || rec.IsValidationError {
			fmt.Printf("Error:     is_error=%t is_validation_error=%t type=%s\n", rec.IsError, rec.IsValidationError, rec.ErrorType)
		}

		fmt.Println("\n--- Request Headers ---")
		printHeaderMap(rec.RequestHeaders)
		if rec.RequestBody != "" {
			fmt.Println("\n--- Request Body ---")
			printBody(rec.RequestBody)
		}
		fmt.Println("\n--- Response Headers ---")
		printHeaderMap(rec.ResponseHeaders)
		if rec.ResponseBody != "" {
			fmt.Println("\n--- Response Body ---")
			printBody(rec.ResponseBody)
		}
	},
}

var requestsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture log totals",
	Run: func(cmd *cobra.Command, args []string) {
		records := loadSnapshotRecords()
		errorCount := 0
		for _, rec := range records {
			if rec.IsError || rec.IsValidationError {
				errorCount++
			}
		}
		fmt.Printf("Total captured requests: %d\n", len(records))
		fmt.Printf("Errors:                  %d\n", errorCount)
	},
}

var requestsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all captured requests from the database",
	Run: func(cmd *cobra.Command, args []string) {
		if !requestsClearForce {
			fmt.Print("This will permanently delete all captured requests. Continue? [y/N]: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return
			}
		}
		if err := database.SaveCapturedRequests(nil); err != nil {
			logger.Error("Failed to clear captured requests: %v", err)
			fmt.Fprintln(os.Stderr, "Error clearing captured requests.")
			os.Exit(1)
		}
		fmt.Println("Captured requests cleared.")
		logger.Info("Capture snapshot cleared via 'requests clear'.")
	},
}

var requestsCurlCmd = &cobra.Command{
	Use:   "curl [request_id]",
	Short: "Print a captured request as a curl command",
	Long: `Renders a stored request as a multi-line curl command, with the active
URL rewrite rules applied. Sentinel bodies recorded by the lifecycle
observer are emitted as comments rather than -d flags.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec, ok := findSnapshotRecord(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Captured request not found: %s\n", args[0])
			os.Exit(1)
		}

		cfg, err := database.GetMonitorConfig()
		if err != nil {
			logger.Error("Failed to load monitor config: %v", err)
			fmt.Fprintln(os.Stderr, "Error loading monitor config.")
			os.Exit(1)
		}

		opts := core.DefaultCurlOptions()
		opts.IncludeHeaders = !curlNoHeaders
		opts.IncludeBody = !curlNoBody
		fmt.Println(core.BuildCurlCommand(rec, opts, cfg.RewriteRules))
	},
}

// findSnapshotRecord matches a full record id or an unambiguous prefix.
func findSnapshotRecord(id string) (models.CapturedRequest, bool) {
	var match models.CapturedRequest
	matches := 0
	for _, rec := range loadSnapshotRecords() {
		if rec.ID == id {
			return rec, true
		}
		if strings.HasPrefix(rec.ID, id) {
			match = rec
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	if matches > 1 {
		fmt.Fprintf(os.Stderr, "Ambiguous request id prefix '%s' (%d matches).\n", id, matches)
	}
	return models.CapturedRequest{}, false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printHeaderMap(headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	for name, value := range headers {
		fmt.Printf("%s: %s\n", name, value)
	}
}

// printBody pretty-prints JSON bodies and falls back to the raw text.
func printBody(body string) {
	var buf strings.Builder
	var parsed interface{}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(parsed); err == nil {
			fmt.Print(buf.String())
			return
		}
	}
	fmt.Println(strings.ToValidUTF8(body, ""))
}

func init() {
	requestsListCmd.Flags().StringVarP(&requestsListDomain, "domain", "d", "", "Filter by API domain")
	requestsListCmd.Flags().BoolVar(&requestsListErrorsOnly, "errors-only", false, "Show only failed or invalid requests")
	requestsListCmd.Flags().IntVarP(&requestsListLimit, "limit", "l", 30, "Maximum number of records to show (0 for all)")
	requestsListCmd.Flags().BoolVar(&requestsListJSON, "json", false, "Emit raw records as JSON")

	requestsClearCmd.Flags().BoolVar(&requestsClearForce, "force", false, "Skip the confirmation prompt")

	requestsCurlCmd.Flags().BoolVar(&curlNoHeaders, "no-headers", false, "Omit captured request headers")
	requestsCurlCmd.Flags().BoolVar(&curlNoBody, "no-body", false, "Omit the captured request body")

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	requestsCmd.AddCommand(requestsStatsCmd)
	requestsCmd.AddCommand(requestsClearCmd)
	requestsCmd.AddCommand(requestsCurlCmd)
	rootCmd.AddCommand(requestsCmd)
}
