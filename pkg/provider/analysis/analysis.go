// Package analysis produces the post-session conversation report. An
// [Analyzer] takes the finalized transcript and returns a structured [Report]
// with qualitative observations, 1-10 skill scores, and actionable feedback.
// Implementations run one LLM completion with a strict-JSON contract.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when the model's response cannot be parsed as a
// report. Callers treat any analysis failure as recoverable: the session
// still ends and the record is saved without a report.
var ErrMalformed = errors.New("analysis: malformed model response")

// Scores are the 1-10 skill ratings for the user's side of the conversation.
type Scores struct {
	Fluency    int `json:"fluency"`
	Clarity    int `json:"clarity"`
	Engagement int `json:"engagement"`
	Vocabulary int `json:"vocabulary"`
}

// Insight is one custom observation requested by the agent profile.
type Insight struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Report is the structured analysis of one session.
type Report struct {
	Summary        string    `json:"summary"`
	Sentiment      string    `json:"sentiment"`
	Tone           string    `json:"tone"`
	SpeakingStyle  string    `json:"speakingStyle"`
	Scores         Scores    `json:"scores"`
	Feedback       []string  `json:"feedback"`
	CustomInsights []Insight `json:"customInsights,omitempty"`
}

// Turn is one finalized utterance handed to the analyzer. Speaker is "user"
// or "ai".
type Turn struct {
	Speaker string
	Text    string
}

// Request carries per-session analysis parameters.
type Request struct {
	// PersonaName is the display name of the agent the user talked to.
	PersonaName string

	// Custom lists extra analysis requirements from the agent profile.
	// Each produces one entry in Report.CustomInsights.
	Custom []string
}

// Analyzer generates a report from a finalized transcript.
type Analyzer interface {
	Analyze(ctx context.Context, convo []Turn, req Request) (*Report, error)
}

// BuildPrompt renders the analysis instruction and transcript for the model.
// The transcript is rendered one utterance per line prefixed with the
// speaker, matching what the report contract describes to the model.
func BuildPrompt(convo []Turn, req Request) string {
	var b strings.Builder

	b.WriteString("You are an expert conversation coach. Analyze the following conversation between a user")
	if req.PersonaName != "" {
		fmt.Fprintf(&b, " and the AI agent %q", req.PersonaName)
	} else {
		b.WriteString(" and an AI agent")
	}
	b.WriteString(".\n\n")
	b.WriteString("Rate the user's communication on a 1-10 scale for fluency, clarity, engagement, and vocabulary. ")
	b.WriteString("Describe the overall sentiment, tone, and speaking style, write a short summary, and give concrete feedback points.\n")

	if len(req.Custom) > 0 {
		b.WriteString("\nAdditionally provide one insight for each of these requirements:\n")
		for _, c := range req.Custom {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	b.WriteString("\nRespond with a single JSON object and nothing else, using exactly these keys: ")
	b.WriteString(`summary, sentiment, tone, speakingStyle, scores {fluency, clarity, engagement, vocabulary}, feedback (array of strings)`)
	if len(req.Custom) > 0 {
		b.WriteString(`, customInsights (array of {title, content})`)
	}
	b.WriteString(".\n\nConversation:\n")

	for _, turn := range convo {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Text)
	}
	return b.String()
}

// ParseReport extracts the report JSON from a model response. Models wrap
// JSON in markdown fences often enough that the fenced form is handled here
// rather than retried.
func ParseReport(raw string) (*Report, error) {
	text := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	// Tolerate prose around the object by slicing the outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	var report Report
	if err := json.Unmarshal([]byte(text[start:end+1]), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &report, nil
}
