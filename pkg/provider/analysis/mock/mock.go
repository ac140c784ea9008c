// Package mock provides a test double for the analysis.Analyzer interface.
package mock

import (
	"context"
	"sync"

	"github.com/vanivoice/vani/pkg/provider/analysis"
)

// AnalyzeCall records a single invocation of Analyzer.Analyze.
type AnalyzeCall struct {
	Convo []analysis.Turn
	Req   analysis.Request
}

// Analyzer is a mock implementation of analysis.Analyzer.
type Analyzer struct {
	// Report is returned by Analyze when Err is nil.
	Report *analysis.Report

	// Err, if non-nil, is returned by every Analyze call.
	Err error

	// Delay, if set, is how long Analyze blocks before returning (still
	// honoring context cancellation).
	Delay func(ctx context.Context) error

	mu    sync.Mutex
	calls []AnalyzeCall
}

// Analyze records the call and returns Report, Err.
func (a *Analyzer) Analyze(ctx context.Context, convo []analysis.Turn, req analysis.Request) (*analysis.Report, error) {
	a.mu.Lock()
	cp := make([]analysis.Turn, len(convo))
	copy(cp, convo)
	a.calls = append(a.calls, AnalyzeCall{Convo: cp, Req: req})
	a.mu.Unlock()

	if a.Delay != nil {
		if err := a.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Report, nil
}

// Calls returns a copy of every recorded Analyze call.
func (a *Analyzer) Calls() []AnalyzeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnalyzeCall, len(a.calls))
	copy(out, a.calls)
	return out
}

var _ analysis.Analyzer = (*Analyzer)(nil)
