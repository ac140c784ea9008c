// Package openai provides an analysis.Analyzer backed by the OpenAI API,
// using the JSON response format so the report contract is enforced
// server-side.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/vanivoice/vani/pkg/provider/analysis"
)

// Analyzer implements analysis.Analyzer using the OpenAI API.
type Analyzer struct {
	client oai.Client
	model  string
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// config holds optional configuration for the analyzer.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Analyzer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Primarily used in
// tests to point at a local server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI Analyzer.
func New(apiKey, model string, opts ...Option) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Analyzer{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Analyze runs one chat completion over the transcript and parses the report.
func (a *Analyzer) Analyze(ctx context.Context, convo []analysis.Turn, req analysis.Request) (*analysis.Report, error) {
	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(analysis.BuildPrompt(convo, req)),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}
	return analysis.ParseReport(resp.Choices[0].Message.Content)
}
