// Package anyllm provides an analysis.Analyzer backed by
// github.com/mozilla-ai/any-llm-go, so the report model can come from OpenAI,
// Anthropic, Gemini, or a local Ollama without code changes.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/vanivoice/vani/pkg/provider/analysis"
)

// Analyzer implements analysis.Analyzer by wrapping any-llm-go.
type Analyzer struct {
	backend anyllmlib.Provider
	model   string
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// New creates an Analyzer backed by the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama".
// model is the specific model to use (e.g., "gemini-2.5-flash").
// opts are any-llm-go options (e.g., anyllmlib.WithAPIKey); without an API
// key option the backend falls back to its usual environment variable.
func New(providerName, model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Analyzer{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
}

// Analyze runs one completion over the transcript and parses the report.
func (a *Analyzer) Analyze(ctx context.Context, convo []analysis.Turn, req analysis.Request) (*analysis.Report, error) {
	resp, err := a.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: a.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: analysis.BuildPrompt(convo, req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}
	return analysis.ParseReport(resp.Choices[0].Message.ContentString())
}
