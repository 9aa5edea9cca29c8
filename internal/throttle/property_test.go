// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// After N >= threshold consecutive failures, check denies with a wait of
// min(2^N, 30) seconds (within one second).
func TestPropertyLockoutWait(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(3, 60).Draw(t, "failures")
		local := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "local")
		id := local + "@example.org"

		g := NewGuard(NewMemoryStore(), DefaultConfig(), nil)
		clock := newFakeClock()
		g.now = clock.Now
		ctx := context.Background()

		for i := 0; i < n; i++ {
			if _, err := g.Record(ctx, id, false); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		decision, err := g.Check(ctx, id)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		want := int(math.Min(math.Pow(2, float64(n)), 30))
		if decision.Allowed {
			t.Fatalf("allowed after %d failures", n)
		}
		if diff := decision.WaitSeconds - want; diff < -1 || diff > 1 {
			t.Fatalf("WaitSeconds = %d, want %d±1", decision.WaitSeconds, want)
		}
	})
}

// A single success resets the record regardless of prior failures.
func TestPropertySuccessResets(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "failures")
		gap := rapid.IntRange(0, 60).Draw(t, "gapSeconds")

		store := NewMemoryStore()
		g := NewGuard(store, DefaultConfig(), nil)
		clock := newFakeClock()
		g.now = clock.Now
		ctx := context.Background()

		for i := 0; i < n; i++ {
			_, _ = g.Record(ctx, "prop@example.org", false)
			clock.Advance(time.Duration(gap) * time.Second)
		}
		_, _ = g.Record(ctx, "prop@example.org", true)

		if _, err := store.Get(ctx, "prop@example.org"); err == nil {
			t.Fatal("record survived a successful login")
		}
		decision, _ := g.Check(ctx, "prop@example.org")
		if !decision.Allowed {
			t.Fatalf("denied after success: %+v", decision)
		}
	})
}

// locked_until is set only at or above the threshold, and always equals
// last_attempt_at + backoff(attempt_count).
func TestPropertyRecordInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 10).Draw(t, "threshold")
		n := rapid.IntRange(1, 20).Draw(t, "failures")

		cfg := DefaultConfig()
		cfg.LockoutThreshold = threshold
		store := NewMemoryStore()
		g := NewGuard(store, cfg, nil)
		clock := newFakeClock()
		g.now = clock.Now
		ctx := context.Background()

		for i := 0; i < n; i++ {
			clock.Advance(time.Duration(rapid.IntRange(0, 5000).Draw(t, "stepMs")) * time.Millisecond)
			_, _ = g.Record(ctx, "inv@example.org", false)

			record, err := store.Get(ctx, "inv@example.org")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if record.AttemptCount < threshold {
				if !record.LockedUntil.IsZero() {
					t.Fatalf("locked below threshold at count %d", record.AttemptCount)
				}
				continue
			}
			want := record.LastAttemptAt.Add(g.Backoff(record.AttemptCount))
			if !record.LockedUntil.Equal(want) {
				t.Fatalf("LockedUntil = %v, want %v", record.LockedUntil, want)
			}
		}
	})
}
