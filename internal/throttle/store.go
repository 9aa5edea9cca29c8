// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRecordNotFound is returned by stores when an identifier has no record.
var ErrRecordNotFound = errors.New("attempt record not found")

// Record tracks failed login attempts for one identifier.
type Record struct {
	Identifier     string    `json:"identifier"`
	AttemptCount   int       `json:"attempt_count"`
	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
	// LockedUntil is zero when no lockout applies.
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// LockedAt reports whether the record denies attempts at now.
func (r *Record) LockedAt(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// Store persists attempt records. The guard serializes calls per identifier
// within one process; RecordFailure must also be atomic across processes that
// share the store.
type Store interface {
	// Get returns the record for identifier or ErrRecordNotFound.
	Get(ctx context.Context, identifier string) (*Record, error)

	// Put creates or replaces a record.
	Put(ctx context.Context, record *Record) error

	// RecordFailure counts one failed attempt at now and returns the updated
	// record. lockFor maps the new attempt count to a lockout period, zero for
	// none. An existing lock is only ever extended.
	RecordFailure(ctx context.Context, identifier string, now time.Time, lockFor func(attempts int) time.Duration) (*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, identifier string) error

	// Sweep removes records last touched before idleBefore that are not
	// locked at now, and returns how many were removed.
	Sweep(ctx context.Context, idleBefore, now time.Time) (int, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, identifier string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[identifier]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &record, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Identifier] = *record
	return nil
}

// RecordFailure implements Store.
func (s *MemoryStore) RecordFailure(_ context.Context, identifier string, now time.Time, lockFor func(int) time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identifier]
	if !ok {
		record = Record{Identifier: identifier, FirstAttemptAt: now}
	}
	record.AttemptCount++
	record.LastAttemptAt = now
	if d := lockFor(record.AttemptCount); d > 0 {
		if until := now.Add(d); until.After(record.LockedUntil) {
			record.LockedUntil = until
		}
	}
	s.records[identifier] = record
	return &record, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}

// Sweep implements Store. The condition is rechecked under the write lock so
// a record updated after the caller's snapshot is never removed.
func (s *MemoryStore) Sweep(_ context.Context, idleBefore, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if record.LastAttemptAt.Before(idleBefore) && !record.LockedAt(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
