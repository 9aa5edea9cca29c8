// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package consent

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/storage"
)

// toggleSink wraps a MemoryStore and fails while down is set.
type toggleSink struct {
	mu    sync.Mutex
	down  bool
	inner *audit.MemoryStore
}

func newToggleSink() *toggleSink {
	return &toggleSink{inner: audit.NewMemoryStore(0)}
}

func (s *toggleSink) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *toggleSink) Append(ctx context.Context, e *audit.Event) error {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return audit.ErrSinkUnavailable
	}
	return s.inner.Append(ctx, e)
}

func (s *toggleSink) Query(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	return s.inner.Query(ctx, q)
}

func (s *toggleSink) count(action audit.Action) int {
	events, _ := s.inner.Query(context.Background(), audit.Query{Actions: []audit.Action{action}})
	return len(events)
}

func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"badger": func() Store {
			db, err := storage.OpenInMemory()
			if err != nil {
				t.Fatalf("OpenInMemory: %v", err)
			}
			store, err := NewBadgerStore(db)
			if err != nil {
				t.Fatalf("NewBadgerStore: %v", err)
			}
			t.Cleanup(func() {
				store.Close()
				db.Close()
			})
			return store
		},
	}
}

func newTestTracker(store Store) (*Tracker, *toggleSink) {
	sink := newToggleSink()
	tr := NewTracker(store, sink, DefaultConfig())
	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	tr.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return tr, sink
}

func TestGrantRevokeGrantHistory(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			tr, sink := newTestTracker(factory())
			ctx := context.Background()

			g1, err := tr.Grant(ctx, "voter-1", PurposeMarketing, "v1")
			if err != nil {
				t.Fatalf("Grant: %v", err)
			}
			r1, err := tr.Revoke(ctx, "voter-1", PurposeMarketing)
			if err != nil {
				t.Fatalf("Revoke: %v", err)
			}
			g2, err := tr.Grant(ctx, "voter-1", PurposeMarketing, "v2")
			if err != nil {
				t.Fatalf("second Grant: %v", err)
			}

			seq, err := tr.History(ctx, "voter-1")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			history := slices.Collect(seq)
			if len(history) != 3 {
				t.Fatalf("history has %d records, want 3", len(history))
			}

			wantIDs := []string{g1.ID, r1.ID, g2.ID}
			for i, rec := range history {
				if rec.ID != wantIDs[i] {
					t.Errorf("history[%d] = %s, want %s", i, rec.ID, wantIDs[i])
				}
			}
			if !history[0].Active() || history[1].Active() || !history[2].Active() {
				t.Errorf("unexpected states: %+v", history)
			}
			if history[1].RevokedAt == nil || !history[1].GrantedAt.Equal(g1.GrantedAt) {
				t.Errorf("revocation record = %+v", history[1])
			}
			if history[0].RevokedAt != nil {
				t.Error("original grant was mutated by revoke")
			}

			if sink.count(audit.ActionConsentGranted) != 2 || sink.count(audit.ActionConsentRevoked) != 1 {
				t.Errorf("audit events: granted=%d revoked=%d",
					sink.count(audit.ActionConsentGranted), sink.count(audit.ActionConsentRevoked))
			}

			state, _ := tr.CurrentState(ctx, "voter-1", PurposeMarketing)
			if !state.Active || state.Status != StatusGranted || state.Record.ID != g2.ID {
				t.Errorf("current state = %+v", state)
			}
		})
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			tr, sink := newTestTracker(factory())
			ctx := context.Background()

			rec, err := tr.Revoke(ctx, "voter-2", PurposeAnalytics)
			if err != nil || rec != nil {
				t.Fatalf("Revoke on NONE = %+v, %v; want nil, nil", rec, err)
			}

			_, _ = tr.Grant(ctx, "voter-2", PurposeAnalytics, "v1")
			first, _ := tr.Revoke(ctx, "voter-2", PurposeAnalytics)
			second, err := tr.Revoke(ctx, "voter-2", PurposeAnalytics)
			if err != nil {
				t.Fatalf("second Revoke: %v", err)
			}
			if second.ID != first.ID {
				t.Errorf("second revoke returned %s, want the terminal record %s", second.ID, first.ID)
			}
			if got := sink.count(audit.ActionConsentRevoked); got != 1 {
				t.Errorf("consent_revoked events = %d, want 1", got)
			}
		})
	}
}

func TestGrantAlreadyActiveIsNoop(t *testing.T) {
	t.Parallel()

	tr, sink := newTestTracker(NewMemoryStore())
	ctx := context.Background()

	first, _ := tr.Grant(ctx, "voter-3", PurposeCookies, "v1")
	again, err := tr.Grant(ctx, "voter-3", PurposeCookies, "v9")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if again.ID != first.ID || again.Version != "v1" {
		t.Errorf("no-op grant returned %+v, want the existing record", again)
	}
	if sink.count(audit.ActionConsentGranted) != 1 {
		t.Error("no-op grant emitted an audit event")
	}
}

func TestSinkFailureRefusesChange(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	tr, sink := newTestTracker(store)
	ctx := context.Background()

	sink.setDown(true)
	if _, err := tr.Grant(ctx, "voter-4", PurposeDataProcessing, "v1"); !errors.Is(err, ErrConsentNotRecorded) {
		t.Fatalf("Grant with sink down = %v, want ErrConsentNotRecorded", err)
	}
	state, _ := tr.CurrentState(ctx, "voter-4", PurposeDataProcessing)
	if state.Status != StatusNone {
		t.Errorf("refused grant left state %s", state.Status)
	}

	sink.setDown(false)
	if _, err := tr.Grant(ctx, "voter-4", PurposeDataProcessing, "v1"); err != nil {
		t.Fatalf("Grant after recovery: %v", err)
	}

	sink.setDown(true)
	if _, err := tr.Revoke(ctx, "voter-4", PurposeDataProcessing); !errors.Is(err, ErrConsentNotRecorded) {
		t.Fatalf("Revoke with sink down = %v", err)
	}
	state, _ = tr.CurrentState(ctx, "voter-4", PurposeDataProcessing)
	if !state.Active {
		t.Error("refused revoke changed the state")
	}
}

func TestHistoryIsRestartableSnapshot(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(NewMemoryStore())
	ctx := context.Background()

	_, _ = tr.Grant(ctx, "voter-5", PurposeMarketing, "v1")
	_, _ = tr.Grant(ctx, "voter-5", PurposeAnalytics, "v1")

	seq, _ := tr.History(ctx, "voter-5")

	// Later changes do not leak into an already returned sequence.
	_, _ = tr.Revoke(ctx, "voter-5", PurposeMarketing)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("iterations yielded %d and %d records, want 2 each", len(first), len(second))
	}

	first[0].Version = "tampered"
	third := slices.Collect(seq)
	if third[0].Version != "v1" {
		t.Error("mutating a yielded record changed the sequence")
	}

	// Early termination is honored.
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("break yielded %d records", n)
	}

	marketing, _ := tr.PurposeHistory(ctx, "voter-5", PurposeMarketing)
	if got := len(slices.Collect(marketing)); got != 2 {
		t.Errorf("marketing history = %d records, want 2", got)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(NewMemoryStore())
	ctx := context.Background()

	cases := []struct {
		subject string
		purpose Purpose
		version string
		want    error
	}{
		{"", PurposeMarketing, "v1", ErrInvalidSubject},
		{"bad\nsubject", PurposeMarketing, "v1", ErrInvalidSubject},
		{"voter", "Marketing", "v1", ErrInvalidPurpose},
		{"voter", "", "v1", ErrInvalidPurpose},
		{"voter", "door_knocking", "", ErrInvalidVersion},
	}
	for _, tc := range cases {
		if _, err := tr.Grant(ctx, tc.subject, tc.purpose, tc.version); !errors.Is(err, tc.want) {
			t.Errorf("Grant(%q, %q, %q) = %v, want %v", tc.subject, tc.purpose, tc.version, err, tc.want)
		}
	}

	if _, err := tr.Grant(ctx, "voter", "door_knocking", "2026-01"); err != nil {
		t.Errorf("custom purpose rejected: %v", err)
	}
}

func TestConcurrentGrantsProduceOneRecord(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	tr, sink := newTestTracker(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.Grant(ctx, "voter-6", PurposeCommunications, "v1")
		}()
	}
	wg.Wait()

	history, _ := store.History(ctx, "voter-6")
	if len(history) != 1 {
		t.Errorf("concurrent grants wrote %d records, want 1", len(history))
	}
	if sink.count(audit.ActionConsentGranted) != 1 {
		t.Errorf("concurrent grants emitted %d events", sink.count(audit.ActionConsentGranted))
	}
}

func TestBadgerStoreLatestAcrossSubjects(t *testing.T) {
	t.Parallel()

	store := storeFactories(t)["badger"]()
	tr, _ := newTestTracker(store)
	ctx := context.Background()

	// "ab" sorts after "a" + NUL, so prefixes must not bleed into each other.
	_, _ = tr.Grant(ctx, "a", PurposeMarketing, "v1")
	_, _ = tr.Grant(ctx, "ab", PurposeMarketing, "v1")
	_, _ = tr.Revoke(ctx, "ab", PurposeMarketing)

	state, err := tr.CurrentState(ctx, "a", PurposeMarketing)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if !state.Active {
		t.Errorf("subject a affected by subject ab: %+v", state)
	}
}

// brokenStore reads like an empty store and refuses every append.
type brokenStore struct{ *MemoryStore }

var errStoreFull = errors.New("store full")

func (*brokenStore) Append(context.Context, *Record) error { return errStoreFull }

func TestStoreFailureVoidsAuditEvent(t *testing.T) {
	t.Parallel()

	store := &brokenStore{MemoryStore: NewMemoryStore()}
	tr, sink := newTestTracker(store)
	ctx := context.Background()

	if _, err := tr.Grant(ctx, "voter-9", PurposeMarketing, "v1"); !errors.Is(err, ErrConsentNotRecorded) {
		t.Fatalf("Grant = %v, want ErrConsentNotRecorded", err)
	}

	granted, _ := sink.inner.Query(ctx, audit.Query{Actions: []audit.Action{audit.ActionConsentGranted}})
	voided, _ := sink.inner.Query(ctx, audit.Query{Actions: []audit.Action{audit.ActionConsentRolledBack}})
	if len(granted) != 1 || len(voided) != 1 {
		t.Fatalf("granted=%d rolled_back=%d, want 1 each", len(granted), len(voided))
	}
	if voided[0].Metadata["rolled_back"] != granted[0].ID {
		t.Errorf("rolled_back = %q, want %q", voided[0].Metadata["rolled_back"], granted[0].ID)
	}
	if voided[0].SubjectID != "voter-9" || voided[0].Metadata["purpose"] != string(PurposeMarketing) {
		t.Errorf("rollback event = %+v", voided[0])
	}
}
