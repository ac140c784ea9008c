package record

import (
	"context"
	"errors"
	"testing"
	"time"
)

// failingStore is a Store whose every call returns failErr, counting calls.
type failingStore struct {
	failErr error
	calls   int
}

var _ Store = (*failingStore)(nil)

func (s *failingStore) Save(ctx context.Context, rec *SessionRecord) error {
	s.calls++
	return s.failErr
}

func (s *failingStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.calls++
	return nil, s.failErr
}

func (s *failingStore) List(ctx context.Context, agentID string, limit int) ([]SessionRecord, error) {
	s.calls++
	return nil, s.failErr
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	s.calls++
	return s.failErr
}

func TestFallback_PrimaryServes(t *testing.T) {
	primary := NewMemory()
	secondary := NewMemory()
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := fb.Save(context.Background(), sampleRecord("r1", "default_supervisor", started)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := primary.Get(context.Background(), "r1")
	if err != nil || got == nil {
		t.Fatalf("primary.Get() = (%+v, %v), want record", got, err)
	}
	got, err = secondary.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("secondary.Get() error = %v", err)
	}
	if got != nil {
		t.Error("secondary received a write while the primary was healthy")
	}
}

func TestFallback_FallsBackOnFailure(t *testing.T) {
	primary := &failingStore{failErr: errors.New("connection refused")}
	secondary := NewMemory()
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := fb.Save(context.Background(), sampleRecord("r1", "default_supervisor", started)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := fb.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.ID != "r1" {
		t.Errorf("Get() = %+v, want record r1 from fallback", got)
	}
}

func TestFallback_BreakerSkipsFailingPrimary(t *testing.T) {
	primary := &failingStore{failErr: errors.New("connection refused")}
	secondary := NewMemory()
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := fb.Save(context.Background(), sampleRecord("r1", "default_supervisor", started)); err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
	}

	// Breaker trips after 3 consecutive failures; the last two saves must
	// not have touched the primary.
	if primary.calls != 3 {
		t.Errorf("primary.calls = %d, want 3", primary.calls)
	}
	if !fb.backends[0].breaker.open() {
		t.Error("primary breaker should be open")
	}
}

func TestFallback_AllBackendsFailed(t *testing.T) {
	primary := &failingStore{failErr: errors.New("connection refused")}
	secondary := &failingStore{failErr: errors.New("out of memory")}
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := fb.Save(context.Background(), sampleRecord("r1", "default_supervisor", started))
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("Save() error = %v, want ErrAllBackendsFailed", err)
	}
}

func TestFallback_GetMissDoesNotFailOver(t *testing.T) {
	primary := NewMemory()
	secondary := NewMemory()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := secondary.Save(context.Background(), sampleRecord("r1", "default_supervisor", started)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	got, err := fb.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil miss from healthy primary", got)
	}
}

func TestFallback_DeleteRemovesFromAllBackends(t *testing.T) {
	primary := NewMemory()
	secondary := NewMemory()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []*Memory{primary, secondary} {
		if err := s.Save(context.Background(), sampleRecord("r1", "default_supervisor", started)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	fb := NewFallback("primary", primary).AddFallback("secondary", secondary)

	if err := fb.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	for name, s := range map[string]*Memory{"primary": primary, "secondary": secondary} {
		got, err := s.Get(context.Background(), "r1")
		if err != nil {
			t.Fatalf("%s.Get() error = %v", name, err)
		}
		if got != nil {
			t.Errorf("%s still holds the record after Delete()", name)
		}
	}
}

func TestBreaker_ReclosesAfterSuccessfulProbe(t *testing.T) {
	b := newBreaker(2, 10*time.Millisecond)

	b.record(errors.New("boom"))
	b.record(errors.New("boom"))
	if b.allow() {
		t.Fatal("breaker should reject calls right after tripping")
	}

	time.Sleep(15 * time.Millisecond)
	if !b.allow() {
		t.Fatal("breaker should admit a probe after the cooldown")
	}
	b.record(nil)
	if !b.allow() {
		t.Error("breaker should be closed after a successful probe")
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	b := newBreaker(2, 10*time.Millisecond)

	b.record(errors.New("boom"))
	b.record(errors.New("boom"))
	time.Sleep(15 * time.Millisecond)

	if !b.allow() {
		t.Fatal("breaker should admit a probe after the cooldown")
	}
	b.record(errors.New("still down"))
	if b.allow() {
		t.Error("breaker should reject calls after a failed probe")
	}
}
