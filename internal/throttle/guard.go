// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package throttle gates login attempts per identifier with exponential
// backoff.
//
// Once an identifier has failed LockoutThreshold times in a row, each further
// failure locks it for min(2^attempts * BaseDelay, MaxDelay). A successful
// login resets the record. The guard is advisory: the identity provider stays
// authoritative over credentials, and decisions never fail because of storage
// or audit problems.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/keylock"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/metrics"
)

// MaxIdentifierLength bounds identifiers (the longest valid email address).
const MaxIdentifierLength = 254

// ErrInvalidIdentifier is returned for empty, oversized, or control-character
// identifiers. No state is touched when it is returned.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Config holds throttle parameters.
type Config struct {
	// LockoutThreshold is the failed-attempt count at which lockouts start.
	LockoutThreshold int

	// BaseDelay is multiplied by 2^attempts to get the lockout period.
	BaseDelay time.Duration

	// MaxDelay caps the lockout period.
	MaxDelay time.Duration

	// EntryTTL is how long an unlocked record survives without attempts.
	EntryTTL time.Duration

	// SweepInterval is how often idle records are removed.
	SweepInterval time.Duration
}

// DefaultConfig returns the defaults: lock from the third failure, 1s base,
// 30s cap.
func DefaultConfig() Config {
	return Config{
		LockoutThreshold: 3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		EntryTTL:         24 * time.Hour,
		SweepInterval:    10 * time.Minute,
	}
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed     bool `json:"allowed"`
	WaitSeconds int  `json:"wait_seconds"`
}

// Attempt describes one login attempt for Record.
type Attempt struct {
	Identifier string
	Success    bool
	// SubjectID is the authenticated subject on success; the identifier is
	// used for audit events when empty.
	SubjectID string
	SourceIP  string
	UserAgent string
}

// Guard is the login throttle.
type Guard struct {
	config   Config
	store    Store
	recorder audit.Recorder
	locks    *keylock.Map
	now      func() time.Time
}

// NewGuard creates a guard. A nil store uses memory; a nil recorder discards
// audit events.
func NewGuard(store Store, config Config, recorder audit.Recorder) *Guard {
	defaults := DefaultConfig()
	if config.LockoutThreshold <= 0 {
		config.LockoutThreshold = defaults.LockoutThreshold
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.EntryTTL <= 0 {
		config.EntryTTL = defaults.EntryTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	return &Guard{
		config:   config,
		store:    store,
		recorder: recorder,
		locks:    keylock.New(),
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (g *Guard) Config() Config {
	return g.config
}

// SetClock replaces the time source. Call it before the guard is shared.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// NormalizeIdentifier trims and lowercases identifier and validates it.
func NormalizeIdentifier(identifier string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" || len(id) > MaxIdentifierLength {
		return "", ErrInvalidIdentifier
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return "", ErrInvalidIdentifier
		}
	}
	return id, nil
}

// Backoff returns the lockout period after attempts consecutive failures.
func (g *Guard) Backoff(attempts int) time.Duration {
	return backoff(attempts, g.config.BaseDelay, g.config.MaxDelay)
}

func backoff(attempts int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempts; i++ {
		if delay > max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// lockFor is the lockout period after attempts consecutive failures, zero
// below the threshold.
func (g *Guard) lockFor(attempts int) time.Duration {
	if attempts < g.config.LockoutThreshold {
		return 0
	}
	return g.Backoff(attempts)
}

// Check reports whether identifier may attempt a login now.
func (g *Guard) Check(ctx context.Context, identifier string) (Decision, error) {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return Decision{}, err
	}

	record, err := g.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			logging.Ctx(ctx).Warn().Err(err).
				Str("identifier", logging.MaskIdentifier(id)).
				Msg("Throttle store read failed, allowing attempt")
		}
		metrics.RecordThrottleDecision(true)
		return Decision{Allowed: true}, nil
	}

	decision := decide(record, g.now())
	metrics.RecordThrottleDecision(decision.Allowed)
	return decision, nil
}

func decide(record *Record, now time.Time) Decision {
	if !record.LockedAt(now) {
		return Decision{Allowed: true}
	}
	wait := record.LockedUntil.Sub(now)
	return Decision{
		Allowed:     false,
		WaitSeconds: int(math.Ceil(wait.Seconds())),
	}
}

// Record records the outcome of a login attempt for identifier.
func (g *Guard) Record(ctx context.Context, identifier string, success bool) (Decision, error) {
	return g.RecordAttempt(ctx, Attempt{Identifier: identifier, Success: success})
}

// RecordAttempt records an attempt and returns the resulting decision for the
// next attempt. Updates for one identifier are serialized.
func (g *Guard) RecordAttempt(ctx context.Context, attempt Attempt) (Decision, error) {
	id, err := NormalizeIdentifier(attempt.Identifier)
	if err != nil {
		return Decision{}, err
	}

	unlock := g.locks.Lock(id)
	defer unlock()

	subject := attempt.SubjectID
	if subject == "" {
		subject = id
	}

	if attempt.Success {
		if err := g.store.Delete(ctx, id); err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("identifier", logging.MaskIdentifier(id)).
				Msg("Throttle store reset failed")
		}
		g.recorder.Record(audit.NewEvent(audit.ActionLoginSuccess, subject).
			WithMeta("identifier", id).
			WithSource(attempt.SourceIP, attempt.UserAgent))
		return Decision{Allowed: true}, nil
	}

	now := g.now()
	record, err := g.store.RecordFailure(ctx, id, now, g.lockFor)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("identifier", logging.MaskIdentifier(id)).
			Msg("Throttle store write failed")
		record = &Record{Identifier: id, AttemptCount: 1, FirstAttemptAt: now, LastAttemptAt: now}
		if d := g.lockFor(1); d > 0 {
			record.LockedUntil = now.Add(d)
		}
	}

	locked := record.AttemptCount >= g.config.LockoutThreshold

	g.recorder.Record(audit.NewEvent(audit.ActionLoginFailed, subject).
		WithMeta("identifier", id).
		WithMeta("attempt_count", fmt.Sprint(record.AttemptCount)).
		WithSource(attempt.SourceIP, attempt.UserAgent))

	if locked {
		metrics.ThrottleLockouts.Inc()
		logging.Ctx(ctx).Warn().
			Str("identifier", logging.MaskIdentifier(id)).
			Int("attempt_count", record.AttemptCount).
			Time("locked_until", record.LockedUntil).
			Msg("Identifier locked")
		g.recorder.Record(audit.NewEvent(audit.ActionLoginLocked, subject).
			WithMeta("identifier", id).
			WithMeta("locked_until", record.LockedUntil.UTC().Format(time.RFC3339Nano)).
			WithSource(attempt.SourceIP, attempt.UserAgent))
	}

	return decide(record, now), nil
}

// Sweep removes idle unlocked records and returns how many were removed.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	now := g.now()
	removed, err := g.store.Sweep(ctx, now.Add(-g.config.EntryTTL), now)
	if err != nil {
		return 0, fmt.Errorf("sweep throttle records: %w", err)
	}
	if removed > 0 {
		metrics.ThrottleRecordsSwept.Add(float64(removed))
	}
	return removed, nil
}
