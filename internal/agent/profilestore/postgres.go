package profilestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vanivoice/vani/internal/agent"
)

// Schema is the SQL DDL for the agent_profiles table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS agent_profiles (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    language         TEXT NOT NULL DEFAULT '',
    objective        TEXT NOT NULL DEFAULT '',
    first_question   TEXT NOT NULL DEFAULT '',
    context_and_tone TEXT NOT NULL DEFAULT '',
    questions        JSONB NOT NULL DEFAULT '[]',
    knowledge_base   TEXT NOT NULL DEFAULT '',
    voice            TEXT NOT NULL DEFAULT '',
    custom_analysis  JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_agent_profiles_name ON agent_profiles(name);
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
		return fmt.Errorf("profilestore: migrate: %w", err)
	}
	return nil
}

const profileColumns = `id, name, language, objective, first_question, context_and_tone,
       questions, knowledge_base, voice, custom_analysis, created_at, updated_at`

// Create inserts a new profile, returning an error when the ID is taken.
func (s *Postgres) Create(ctx context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	questionsJSON, customJSON, err := marshalLists(p)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO agent_profiles (
			id, name, language, objective, first_question, context_and_tone,
			questions, knowledge_base, voice, custom_analysis
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Language, p.Objective, p.FirstQuestion, p.ContextAndTone,
		questionsJSON, p.KnowledgeBase, p.Voice, customJSON,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("profilestore: profile with id %q already exists", p.ID)
		}
		return fmt.Errorf("profilestore: create: %w", err)
	}
	return nil
}

// Get retrieves a profile by ID, returning (nil, nil) when absent.
func (s *Postgres) Get(ctx context.Context, id string) (*agent.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM agent_profiles WHERE id = $1`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("profilestore: get %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProfile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("profilestore: get %q: %w", id, err)
	}
	return &p, nil
}

// Update replaces an existing profile.
func (s *Postgres) Update(ctx context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	questionsJSON, customJSON, err := marshalLists(p)
	if err != nil {
		return err
	}

	const query = `
		UPDATE agent_profiles SET
			name = $2, language = $3, objective = $4, first_question = $5,
			context_and_tone = $6, questions = $7, knowledge_base = $8,
			voice = $9, custom_analysis = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Language, p.Objective, p.FirstQuestion, p.ContextAndTone,
		questionsJSON, p.KnowledgeBase, p.Voice, customJSON,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("profilestore: profile with id %q not found", p.ID)
		}
		return fmt.Errorf("profilestore: update: %w", err)
	}
	return nil
}

// Delete removes a profile by ID. Deleting a non-existent profile is not an
// error.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM agent_profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("profilestore: delete %q: %w", id, err)
	}
	return nil
}

// List returns all profiles ordered by name.
func (s *Postgres) List(ctx context.Context) ([]agent.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM agent_profiles ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("profilestore: list: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, scanProfile)
	if err != nil {
		return nil, fmt.Errorf("profilestore: list: %w", err)
	}
	return profiles, nil
}

// Upsert creates or replaces a profile.
func (s *Postgres) Upsert(ctx context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	questionsJSON, customJSON, err := marshalLists(p)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO agent_profiles (
			id, name, language, objective, first_question, context_and_tone,
			questions, knowledge_base, voice, custom_analysis
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			language = EXCLUDED.language,
			objective = EXCLUDED.objective,
			first_question = EXCLUDED.first_question,
			context_and_tone = EXCLUDED.context_and_tone,
			questions = EXCLUDED.questions,
			knowledge_base = EXCLUDED.knowledge_base,
			voice = EXCLUDED.voice,
			custom_analysis = EXCLUDED.custom_analysis,
			updated_at = now()
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Language, p.Objective, p.FirstQuestion, p.ContextAndTone,
		questionsJSON, p.KnowledgeBase, p.Voice, customJSON,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("profilestore: upsert: %w", err)
	}
	return nil
}

// scanProfile maps one agent_profiles row onto a Profile.
func scanProfile(row pgx.CollectableRow) (agent.Profile, error) {
	var p agent.Profile
	var questionsJSON, customJSON []byte

	if err := row.Scan(
		&p.ID, &p.Name, &p.Language, &p.Objective, &p.FirstQuestion, &p.ContextAndTone,
		&questionsJSON, &p.KnowledgeBase, &p.Voice, &customJSON, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return agent.Profile{}, err
	}
	if err := json.Unmarshal(questionsJSON, &p.Questions); err != nil {
		return agent.Profile{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(customJSON, &p.CustomAnalysis); err != nil {
		return agent.Profile{}, fmt.Errorf("unmarshal custom_analysis: %w", err)
	}
	return p, nil
}

// marshalLists serialises the list-valued fields, mapping nil to "[]" so the
// JSONB columns never hold null.
func marshalLists(p *agent.Profile) (questions, custom []byte, err error) {
	questions, err = json.Marshal(emptySlice(p.Questions))
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: marshal questions: %w", err)
	}
	custom, err = json.Marshal(emptySlice(p.CustomAnalysis))
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: marshal custom_analysis: %w", err)
	}
	return questions, custom, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
