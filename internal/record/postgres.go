package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vanivoice/vani/internal/transcript"
	"github.com/vanivoice/vani/pkg/provider/analysis"
)

// Schema is the SQL DDL for the session_records table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS session_records (
    id         TEXT PRIMARY KEY,
    agent_id   TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'completed',
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ NOT NULL,
    transcript JSONB NOT NULL DEFAULT '[]',
    report     JSONB
);
CREATE INDEX IF NOT EXISTS idx_session_records_agent_started
    ON session_records(agent_id, started_at DESC);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a [Store] backed by a PostgreSQL database.
type Postgres struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*Postgres)(nil)

// NewPostgres creates a [Postgres] store over the given connection or pool.
// The caller is responsible for calling [Postgres.Migrate] before issuing
// queries.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("record: migrate: %w", err)
	}
	return nil
}

const recordColumns = `id, agent_id, status, started_at, ended_at, transcript, report`

// Save inserts or replaces a record keyed by its ID.
func (s *Postgres) Save(ctx context.Context, rec *SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	transcriptJSON, reportJSON, err := marshalPayload(rec)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO session_records (id, agent_id, status, started_at, ended_at, transcript, report)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			transcript = EXCLUDED.transcript,
			report = EXCLUDED.report`

	if _, err := s.db.Exec(ctx, query,
		rec.ID, rec.AgentID, rec.Status, rec.StartedAt, rec.EndedAt, transcriptJSON, reportJSON,
	); err != nil {
		return fmt.Errorf("record: save %q: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a record by ID, returning (nil, nil) when absent.
func (s *Postgres) Get(ctx context.Context, id string) (*SessionRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM session_records WHERE id = $1`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("record: get %q: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("record: get %q: %w", id, err)
	}
	return &rec, nil
}

// List returns records newest first, optionally filtered by agent.
func (s *Postgres) List(ctx context.Context, agentID string, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM session_records`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = $1`
		args = append(args, agentID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("record: list: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("record: list: %w", err)
	}
	return records, nil
}

// Delete removes a record by ID. Deleting a non-existent record is not an
// error.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM session_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("record: delete %q: %w", id, err)
	}
	return nil
}

// scanRecord maps one session_records row onto a SessionRecord.
func scanRecord(row pgx.CollectableRow) (SessionRecord, error) {
	var rec SessionRecord
	var transcriptJSON []byte
	var reportJSON []byte

	if err := row.Scan(
		&rec.ID, &rec.AgentID, &rec.Status, &rec.StartedAt, &rec.EndedAt, &transcriptJSON, &reportJSON,
	); err != nil {
		return SessionRecord{}, err
	}
	if err := json.Unmarshal(transcriptJSON, &rec.Transcript); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if len(reportJSON) > 0 {
		var rep analysis.Report
		if err := json.Unmarshal(reportJSON, &rep); err != nil {
			return SessionRecord{}, fmt.Errorf("unmarshal report: %w", err)
		}
		rec.Report = &rep
	}
	return rec, nil
}

// marshalPayload serialises the JSONB columns. The transcript maps nil to "[]"
// so the column never holds null; the report column is nullable.
func marshalPayload(rec *SessionRecord) (transcriptJSON, reportJSON []byte, err error) {
	items := rec.Transcript
	if items == nil {
		items = []transcript.Item{}
	}
	transcriptJSON, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("record: marshal transcript: %w", err)
	}
	if rec.Report != nil {
		reportJSON, err = json.Marshal(rec.Report)
		if err != nil {
			return nil, nil, fmt.Errorf("record: marshal report: %w", err)
		}
	}
	return transcriptJSON, reportJSON, nil
}
