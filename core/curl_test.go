package core

import (
	"strings"
	"testing"

	"apiwatch/models"
)

func curlRecord() models.CapturedRequest {
	return models.CapturedRequest{
		ID:     "rec-1",
		URL:    "https://api.example.com/v1/users",
		Method: "POST",
		RequestHeaders: map[string]string{
			"Content-Type":   "application/json",
			"Authorization":  "Bearer token123",
			"Host":           "api.example.com",
			"Connection":     "keep-alive",
			"Content-Length": "27",
			"User-Agent":     "Mozilla/5.0",
		},
		RequestBody: `{"name":"alice"}`,
	}
}

func TestBuildCurlCommandBasics(t *testing.T) {
	cmd := BuildCurlCommand(curlRecord(), DefaultCurlOptions(), nil)

	if !strings.HasPrefix(cmd, "curl -X POST 'https://api.example.com/v1/users'") {
		t.Errorf("unexpected command start: %q", cmd)
	}
	if !strings.Contains(cmd, "-H 'Content-Type: application/json'") {
		t.Errorf("expected content-type header in command: %q", cmd)
	}
	if !strings.Contains(cmd, "-H 'Authorization: Bearer token123'") {
		t.Errorf("expected authorization header in command: %q", cmd)
	}
	if !strings.Contains(cmd, "--compressed") {
		t.Errorf("expected --compressed flag: %q", cmd)
	}
	if !strings.Contains(cmd, " \\\n  ") {
		t.Errorf("expected multi-line continuation formatting: %q", cmd)
	}
	if !strings.Contains(cmd, `"name": "alice"`) {
		t.Errorf("expected pretty printed JSON body: %q", cmd)
	}
}

func TestBuildCurlCommandSkipsManagedHeaders(t *testing.T) {
	cmd := BuildCurlCommand(curlRecord(), DefaultCurlOptions(), nil)

	for _, forbidden := range []string{"Host:", "Connection:", "Content-Length:", "User-Agent:"} {
		if strings.Contains(cmd, forbidden) {
			t.Errorf("command must not re-send %s header: %q", forbidden, cmd)
		}
	}
}

func TestBuildCurlCommandQuoting(t *testing.T) {
	rec := curlRecord()
	rec.URL = "https://api.example.com/v1/search?q=o'brien"
	rec.RequestBody = ""

	cmd := BuildCurlCommand(rec, DefaultCurlOptions(), nil)
	if !strings.Contains(cmd, `'https://api.example.com/v1/search?q=o'"'"'brien'`) {
		t.Errorf("single quotes must be escaped for the shell: %q", cmd)
	}
}

func TestBuildCurlCommandSentinelBody(t *testing.T) {
	rec := curlRecord()
	rec.RequestBody = models.SentinelLifecycleNoBody

	cmd := BuildCurlCommand(rec, DefaultCurlOptions(), nil)
	if strings.Contains(cmd, "-d ") {
		t.Errorf("sentinel bodies must not become -d flags: %q", cmd)
	}
	if !strings.Contains(cmd, "# request body omitted: "+models.SentinelLifecycleNoBody) {
		t.Errorf("sentinel bodies must surface as a comment: %q", cmd)
	}
}

func TestBuildCurlCommandBracketPrefixBodyIsNotAMarker(t *testing.T) {
	rec := curlRecord()
	rec.RequestBody = `["alpha","beta"`

	cmd := BuildCurlCommand(rec, DefaultCurlOptions(), nil)
	if !strings.Contains(cmd, "-d ") {
		t.Errorf("a body merely starting with '[' must still be sent: %q", cmd)
	}
	if strings.Contains(cmd, "# request body omitted") {
		t.Errorf("a real body must not be rendered as an omission comment: %q", cmd)
	}
}

func TestBuildCurlCommandAppliesRewriteRules(t *testing.T) {
	rules := []models.RewriteRule{
		{From: "https://api.example.com", To: "http://localhost:3000", Enabled: true},
	}
	cmd := BuildCurlCommand(curlRecord(), DefaultCurlOptions(), rules)
	if !strings.Contains(cmd, "'http://localhost:3000/v1/users'") {
		t.Errorf("rewrite rules must apply to the command URL: %q", cmd)
	}
}

func TestBuildCurlCommandOptions(t *testing.T) {
	opts := CurlOptions{IncludeHeaders: false, IncludeBody: false, Compressed: false, FollowRedirects: true}
	cmd := BuildCurlCommand(curlRecord(), opts, nil)

	if strings.Contains(cmd, "-H ") {
		t.Errorf("headers excluded by options must not appear: %q", cmd)
	}
	if strings.Contains(cmd, "-d ") {
		t.Errorf("body excluded by options must not appear: %q", cmd)
	}
	if strings.Contains(cmd, "--compressed") {
		t.Errorf("--compressed must be optional: %q", cmd)
	}
	if !strings.Contains(cmd, "-L") {
		t.Errorf("expected -L for follow redirects: %q", cmd)
	}
}
