package analysis_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/vanivoice/vani/pkg/provider/analysis"
)

func TestBuildPrompt_RendersConversation(t *testing.T) {
	t.Parallel()

	convo := []analysis.Turn{
		{Speaker: "user", Text: "Hello, I want to practice interviews."},
		{Speaker: "ai", Text: "Great, tell me about yourself."},
	}
	prompt := analysis.BuildPrompt(convo, analysis.Request{PersonaName: "Supervisor"})

	if !strings.Contains(prompt, `"Supervisor"`) {
		t.Error("prompt should name the persona")
	}
	if !strings.Contains(prompt, "user: Hello, I want to practice interviews.") {
		t.Error("prompt should contain the user line")
	}
	if !strings.Contains(prompt, "ai: Great, tell me about yourself.") {
		t.Error("prompt should contain the ai line")
	}
	// The JSON contract must always name every required key.
	for _, key := range []string{"summary", "sentiment", "tone", "speakingStyle", "fluency", "clarity", "engagement", "vocabulary", "feedback"} {
		if !strings.Contains(prompt, key) {
			t.Errorf("prompt missing contract key %q", key)
		}
	}
	if strings.Contains(prompt, "customInsights") {
		t.Error("customInsights should not appear without custom requirements")
	}
}

func TestBuildPrompt_CustomRequirements(t *testing.T) {
	t.Parallel()

	prompt := analysis.BuildPrompt(nil, analysis.Request{
		Custom: []string{"Track filler words", "Note grammar slips"},
	})
	if !strings.Contains(prompt, "- Track filler words") {
		t.Error("prompt should list the first custom requirement")
	}
	if !strings.Contains(prompt, "- Note grammar slips") {
		t.Error("prompt should list the second custom requirement")
	}
	if !strings.Contains(prompt, "customInsights") {
		t.Error("prompt should extend the contract with customInsights")
	}
}

func TestParseReport_PlainJSON(t *testing.T) {
	t.Parallel()

	raw := `{
		"summary": "A friendly chat.",
		"sentiment": "positive",
		"tone": "warm",
		"speakingStyle": "conversational",
		"scores": {"fluency": 8, "clarity": 7, "engagement": 9, "vocabulary": 6},
		"feedback": ["Slow down a little."],
		"customInsights": [{"title": "Filler words", "content": "Few."}]
	}`
	report, err := analysis.ParseReport(raw)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if report.Summary != "A friendly chat." {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Scores.Engagement != 9 {
		t.Errorf("engagement = %d; want 9", report.Scores.Engagement)
	}
	if len(report.Feedback) != 1 || len(report.CustomInsights) != 1 {
		t.Errorf("feedback/insights = %d/%d; want 1/1", len(report.Feedback), len(report.CustomInsights))
	}
}

func TestParseReport_FencedJSON(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"summary\": \"ok\", \"scores\": {\"fluency\": 5}}\n```"
	report, err := analysis.ParseReport(raw)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if report.Summary != "ok" || report.Scores.Fluency != 5 {
		t.Errorf("report = %+v", report)
	}
}

func TestParseReport_ProseAroundObject(t *testing.T) {
	t.Parallel()

	raw := "Here is your report:\n{\"summary\": \"fine\"}\nHope that helps!"
	report, err := analysis.ParseReport(raw)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if report.Summary != "fine" {
		t.Errorf("summary = %q", report.Summary)
	}
}

func TestParseReport_MissingFieldsZeroValued(t *testing.T) {
	t.Parallel()

	report, err := analysis.ParseReport(`{"summary": "short"}`)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if report.Scores.Fluency != 0 || report.Feedback != nil {
		t.Errorf("missing fields should be zero-valued: %+v", report)
	}
}

func TestParseReport_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "no json here", "{broken", "[1,2,3]"} {
		if _, err := analysis.ParseReport(raw); !errors.Is(err, analysis.ErrMalformed) {
			t.Errorf("ParseReport(%q) error = %v; want ErrMalformed", raw, err)
		}
	}
}
