// Package record persists completed session data: the final transcript and,
// when analysis succeeded, the generated report.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/vanivoice/vani/internal/transcript"
	"github.com/vanivoice/vani/pkg/provider/analysis"
)

// StatusCompleted marks a record whose session reached a normal end. The
// status does not depend on whether analysis produced a report.
const StatusCompleted = "completed"

// SessionRecord is the durable trace of one finished session.
type SessionRecord struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agentId"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"startedAt"`
	EndedAt    time.Time         `json:"endedAt"`
	Transcript []transcript.Item `json:"transcript"`

	// Report is nil when analysis failed or was skipped. The record is
	// saved either way.
	Report *analysis.Report `json:"report,omitempty"`
}

// Validate reports whether the record carries the minimum required fields.
func (r *SessionRecord) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("record: id is required"))
	}
	if r.AgentID == "" {
		errs = append(errs, errors.New("record: agent id is required"))
	}
	if r.StartedAt.IsZero() {
		errs = append(errs, errors.New("record: started at is required"))
	}
	return errors.Join(errs...)
}

// Store persists session records.
type Store interface {
	// Save inserts or replaces a record keyed by its ID.
	Save(ctx context.Context, rec *SessionRecord) error

	// Get retrieves a record by ID, returning (nil, nil) when absent.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// List returns records newest first. A non-empty agentID filters by
	// agent; limit <= 0 means no limit.
	List(ctx context.Context, agentID string, limit int) ([]SessionRecord, error)

	// Delete removes a record by ID. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, id string) error
}
