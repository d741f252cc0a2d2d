package core

import (
	"fmt"
	"strings"

	"apiwatch/models"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// CurlOptions control what a generated curl command includes.
type CurlOptions struct {
	IncludeHeaders  bool
	IncludeBody     bool
	Compressed      bool
	FollowRedirects bool
}

// DefaultCurlOptions include headers and body with compression handling.
func DefaultCurlOptions() CurlOptions {
	return CurlOptions{IncludeHeaders: true, IncludeBody: true, Compressed: true}
}

// Headers curl either sets itself or that would be stale when replayed from
// a terminal.
var curlSkipHeaders = map[string]bool{
	"host":           true,
	"connection":     true,
	"content-length": true,
	"user-agent":     true,
}

// BuildCurlCommand renders a captured request as a multi-line curl command.
// Sentinel bodies are emitted as a trailing comment instead of a -d flag,
// and JSON bodies are pretty printed.
func BuildCurlCommand(rec models.CapturedRequest, opts CurlOptions, rewriteRules []models.RewriteRule) string {
	finalURL := RewriteURL(rec.URL, rewriteRules)

	parts := []string{fmt.Sprintf("curl -X %s %s", rec.Method, shellQuote(finalURL))}

	if opts.IncludeHeaders {
		for name, value := range rec.RequestHeaders {
			if curlSkipHeaders[strings.ToLower(name)] {
				continue
			}
			parts = append(parts, fmt.Sprintf("-H %s", shellQuote(name+": "+value)))
		}
	}

	var comment string
	if opts.IncludeBody && rec.RequestBody != "" {
		if models.IsSentinelBody(rec.RequestBody) {
			comment = "# request body omitted: " + rec.RequestBody
		} else {
			parts = append(parts, fmt.Sprintf("-d %s", shellQuote(prettyIfJSON(rec.RequestBody))))
		}
	}

	if opts.Compressed {
		parts = append(parts, "--compressed")
	}
	if opts.FollowRedirects {
		parts = append(parts, "-L")
	}

	cmd := strings.Join(parts, " \\\n  ")
	if comment != "" {
		cmd += "\n" + comment
	}
	return cmd
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func prettyIfJSON(body string) string {
	if !gjson.Valid(body) {
		return body
	}
	return strings.TrimRight(string(pretty.Pretty([]byte(body))), "\n")
}
