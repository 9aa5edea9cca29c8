// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/campaignguard/internal/audit"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureRecorder keeps recorded events in memory.
type captureRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *captureRecorder) Record(e *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) count(action audit.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newTestGuard(t *testing.T) (*Guard, *fakeClock, *captureRecorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &captureRecorder{}
	g := NewGuard(NewMemoryStore(), DefaultConfig(), rec)
	g.now = clock.Now
	return g, clock, rec
}

func TestGuardEndToEndScenario(t *testing.T) {
	t.Parallel()

	g, clock, _ := newTestGuard(t)
	ctx := context.Background()
	start := clock.Now()

	for i := 0; i < 3; i++ {
		clock.Set(start.Add(time.Duration(i) * time.Second))
		if _, err := g.Record(ctx, "a@b.com", false); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	clock.Set(start.Add(3 * time.Second))
	decision, err := g.Check(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected the fourth attempt to be denied")
	}
	if decision.WaitSeconds < 7 || decision.WaitSeconds > 9 {
		t.Errorf("WaitSeconds = %d, want about 8", decision.WaitSeconds)
	}

	clock.Set(start.Add(20 * time.Second))
	if _, err := g.Record(ctx, "a@b.com", true); err != nil {
		t.Fatalf("Record success: %v", err)
	}

	clock.Set(start.Add(21 * time.Second))
	decision, _ = g.Check(ctx, "a@b.com")
	if !decision.Allowed || decision.WaitSeconds != 0 {
		t.Errorf("after success got %+v, want allowed", decision)
	}
}

func TestGuardAllowsBelowThreshold(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, _ := g.Record(ctx, "bob@example.org", false)
		if !decision.Allowed {
			t.Fatalf("attempt %d should not lock", i+1)
		}
	}
	decision, _ := g.Check(ctx, "bob@example.org")
	if !decision.Allowed {
		t.Error("two failures must not lock with threshold 3")
	}
}

func TestGuardLockExpires(t *testing.T) {
	t.Parallel()

	g, clock, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = g.Record(ctx, "carol@example.org", false)
	}
	clock.Advance(8 * time.Second)
	decision, _ := g.Check(ctx, "carol@example.org")
	if !decision.Allowed {
		t.Errorf("lock should expire exactly at locked_until, got %+v", decision)
	}
}

func TestGuardBackoffCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGuard(t)
	ctx := context.Background()

	var decision Decision
	for i := 0; i < 40; i++ {
		decision, _ = g.Record(ctx, "dave@example.org", false)
	}
	if decision.WaitSeconds != 30 {
		t.Errorf("WaitSeconds = %d, want the 30s cap", decision.WaitSeconds)
	}

	if got := g.Backoff(1000); got != 30*time.Second {
		t.Errorf("Backoff(1000) = %v, want 30s", got)
	}
}

func TestGuardNormalizesIdentifiers(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGuard(t)
	ctx := context.Background()

	_, _ = g.Record(ctx, "Erin@Example.org", false)
	_, _ = g.Record(ctx, "  erin@example.org ", false)
	_, _ = g.Record(ctx, "ERIN@EXAMPLE.ORG", false)

	decision, _ := g.Check(ctx, "erin@example.org")
	if decision.Allowed {
		t.Error("case and whitespace variants must share one record")
	}
}

func TestGuardRejectsInvalidIdentifier(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	g := NewGuard(store, DefaultConfig(), nil)
	ctx := context.Background()

	for _, id := range []string{"", "   ", "bad\x00id", "tab\tid", strings.Repeat("x", MaxIdentifierLength+1)} {
		if _, err := g.Check(ctx, id); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Check(%q) = %v, want ErrInvalidIdentifier", id, err)
		}
		if _, err := g.Record(ctx, id, false); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Record(%q) = %v, want ErrInvalidIdentifier", id, err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("invalid input mutated state: %d records", store.Len())
	}
}

func TestGuardEmitsAuditEvents(t *testing.T) {
	t.Parallel()

	g, _, rec := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = g.RecordAttempt(ctx, Attempt{Identifier: "frank@example.org", UserAgent: "Mozilla/5.0", SourceIP: "10.0.0.1"})
	}
	_, _ = g.RecordAttempt(ctx, Attempt{Identifier: "frank@example.org", Success: true, SubjectID: "user-42"})

	if got := rec.count(audit.ActionLoginFailed); got != 3 {
		t.Errorf("login_failed events = %d, want 3", got)
	}
	if got := rec.count(audit.ActionLoginLocked); got != 1 {
		t.Errorf("login_locked events = %d, want 1", got)
	}
	if got := rec.count(audit.ActionLoginSuccess); got != 1 {
		t.Errorf("login_success events = %d, want 1", got)
	}

	rec.mu.Lock()
	first, last := rec.events[0], rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if first.SubjectID != "frank@example.org" || first.UserAgent != "Mozilla/5.0" {
		t.Errorf("failure event = %+v", first)
	}
	if last.SubjectID != "user-42" {
		t.Errorf("success event subject = %q, want user-42", last.SubjectID)
	}
}

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (*Record, error) { return nil, errStoreDown }
func (failingStore) Put(context.Context, *Record) error           { return errStoreDown }
func (failingStore) Delete(context.Context, string) error         { return errStoreDown }
func (failingStore) RecordFailure(context.Context, string, time.Time, func(int) time.Duration) (*Record, error) {
	return nil, errStoreDown
}
func (failingStore) Sweep(context.Context, time.Time, time.Time) (int, error) {
	return 0, errStoreDown
}

func TestGuardNeverErrorsOnStoreFailure(t *testing.T) {
	t.Parallel()

	g := NewGuard(failingStore{}, DefaultConfig(), nil)
	ctx := context.Background()

	decision, err := g.Check(ctx, "gina@example.org")
	if err != nil || !decision.Allowed {
		t.Errorf("Check = %+v, %v; want allowed without error", decision, err)
	}
	if _, err := g.Record(ctx, "gina@example.org", false); err != nil {
		t.Errorf("Record failure returned %v", err)
	}
	if _, err := g.Record(ctx, "gina@example.org", true); err != nil {
		t.Errorf("Record success returned %v", err)
	}
}

func TestGuardSerializesPerIdentifier(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.LockoutThreshold = 1000
	g := NewGuard(store, cfg, nil)
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, _ = g.Record(ctx, "hank@example.org", false)
				_, _ = g.Record(ctx, "ivy@example.org", false)
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"hank@example.org", "ivy@example.org"} {
		record, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if record.AttemptCount != workers*perWorker {
			t.Errorf("%s AttemptCount = %d, want %d (lost update)", id, record.AttemptCount, workers*perWorker)
		}
	}
	if n := g.locks.Len(); n != 0 {
		t.Errorf("keyed mutex kept %d entries after use", n)
	}
}

func TestGuardSweepKeepsLockedRecords(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.EntryTTL = time.Minute
	cfg.MaxDelay = time.Hour
	cfg.BaseDelay = time.Minute
	g := NewGuard(store, cfg, nil)
	clock := newFakeClock()
	g.now = clock.Now
	ctx := context.Background()

	_, _ = g.Record(ctx, "idle@example.org", false)
	for i := 0; i < 3; i++ {
		_, _ = g.Record(ctx, "locked@example.org", false)
	}

	clock.Advance(2 * time.Minute)
	removed, err := g.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "locked@example.org"); err != nil {
		t.Errorf("locked record was swept: %v", err)
	}
}

func TestAuthenticateFlow(t *testing.T) {
	t.Parallel()

	g, _, rec := newTestGuard(t)
	ctx := context.Background()

	calls := 0
	provider := IdentityProviderFunc(func(_ context.Context, identifier, credential string) (Identity, error) {
		calls++
		if credential == "correct horse" {
			return Identity{Success: true, SubjectID: "user-7"}, nil
		}
		return Identity{Success: false}, nil
	})

	attempt := Attempt{Identifier: "jane@example.org"}
	for i := 0; i < 3; i++ {
		out, err := g.Authenticate(ctx, provider, attempt, "wrong")
		if err != nil || !out.Attempted {
			t.Fatalf("attempt %d: %+v, %v", i+1, out, err)
		}
	}

	out, err := g.Authenticate(ctx, provider, attempt, "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if out.Attempted || out.Decision.Allowed {
		t.Errorf("locked identifier reached the provider: %+v", out)
	}
	if calls != 3 {
		t.Errorf("provider calls = %d, want 3", calls)
	}
	if got := rec.count(audit.ActionLoginFailed); got != 3 {
		t.Errorf("login_failed events = %d, want 3", got)
	}
}

func TestAuthenticateProviderErrorDoesNotRecord(t *testing.T) {
	t.Parallel()

	g, _, rec := newTestGuard(t)
	provider := IdentityProviderFunc(func(context.Context, string, string) (Identity, error) {
		return Identity{}, errors.New("idp timeout")
	})

	_, err := g.Authenticate(context.Background(), provider, Attempt{Identifier: "kim@example.org"}, "pw")
	if err == nil {
		t.Fatal("expected provider error")
	}
	if len(rec.events) != 0 {
		t.Errorf("provider outage recorded %d events", len(rec.events))
	}
}
