// Package profilestore provides persistent storage for agent profiles. The
// reference implementation [Postgres] keeps profiles in a single
// agent_profiles table with JSONB columns for list-valued fields; [Memory]
// backs tests and database-less deployments.
package profilestore

import (
	"context"

	"github.com/vanivoice/vani/internal/agent"
)

// Store provides CRUD operations for agent profiles.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new profile. The profile is validated before
	// insertion. Returns an error if a profile with the same ID exists.
	Create(ctx context.Context, p *agent.Profile) error

	// Get retrieves a profile by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (*agent.Profile, error)

	// Update replaces an existing profile. The profile is validated before
	// the update. Returns an error if the profile is not found.
	Update(ctx context.Context, p *agent.Profile) error

	// Delete removes a profile by ID. Deleting a non-existent profile is
	// not an error.
	Delete(ctx context.Context, id string) error

	// List returns all profiles ordered by name.
	List(ctx context.Context) ([]agent.Profile, error)

	// Upsert creates or replaces a profile (useful for config import and
	// default seeding). The profile is validated before persistence.
	Upsert(ctx context.Context, p *agent.Profile) error
}

// Seed inserts the default personas into an empty store. A store that
// already holds profiles is left untouched.
func Seed(ctx context.Context, s Store) error {
	existing, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, p := range agent.DefaultProfiles() {
		if err := s.Upsert(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}
