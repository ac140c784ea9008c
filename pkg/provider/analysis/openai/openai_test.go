package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vanivoice/vani/pkg/provider/analysis"
	"github.com/vanivoice/vani/pkg/provider/analysis/openai"
)

// startCompletionServer serves /chat/completions, capturing the request body
// and answering with the given assistant message content.
func startCompletionServer(t *testing.T, content string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if gotBody != nil {
			_ = json.NewDecoder(r.Body).Decode(gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", "gpt-4o"); err == nil {
		t.Error("empty API key should be rejected")
	}
	if _, err := openai.New("sk-test", ""); err == nil {
		t.Error("empty model should be rejected")
	}
}

func TestAnalyze_ParsesReport(t *testing.T) {
	t.Parallel()

	reportJSON := `{"summary":"Good session.","sentiment":"positive","scores":{"fluency":7,"clarity":8,"engagement":6,"vocabulary":7},"feedback":["Expand answers."]}`
	var body map[string]any
	srv := startCompletionServer(t, reportJSON, &body)

	a, err := openai.New("sk-test", "gpt-4o", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	convo := []analysis.Turn{
		{Speaker: "user", Text: "hi"},
		{Speaker: "ai", Text: "hello"},
	}
	report, err := a.Analyze(context.Background(), convo, analysis.Request{PersonaName: "Teacher"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Summary != "Good session." {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Scores.Clarity != 8 {
		t.Errorf("clarity = %d; want 8", report.Scores.Clarity)
	}

	// The request must carry the model, the JSON response format, and the
	// rendered transcript.
	if body["model"] != "gpt-4o" {
		t.Errorf("model = %v; want gpt-4o", body["model"])
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "json_object") {
		t.Error("request should set the JSON response format")
	}
	if !strings.Contains(string(raw), "user: hi") {
		t.Error("request should contain the rendered transcript")
	}
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := startCompletionServer(t, "sorry, I cannot help with that", nil)
	a, err := openai.New("sk-test", "gpt-4o", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.Analyze(context.Background(), nil, analysis.Request{}); err == nil {
		t.Fatal("Analyze should fail on a non-JSON response")
	}
}
