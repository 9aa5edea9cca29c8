// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package consent

import (
	"context"
	"sync"
)

// Store persists consent history. Records are only ever appended.
type Store interface {
	// Append stores record and assigns its Seq.
	Append(ctx context.Context, record *Record) error

	// Latest returns the most recently appended record for the pair, or nil.
	Latest(ctx context.Context, subjectID string, purpose Purpose) (*Record, error)

	// History returns all records for subjectID in insertion order.
	History(ctx context.Context, subjectID string) ([]Record, error)
}

// MemoryStore keeps consent history in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      uint64
	subjects map[string][]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subjects: make(map[string][]Record)}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	record.Seq = s.seq
	s.subjects[record.SubjectID] = append(s.subjects[record.SubjectID], record.clone())
	return nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, subjectID string, purpose Purpose) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.subjects[subjectID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Purpose == purpose {
			r := records[i].clone()
			return &r, nil
		}
	}
	return nil, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, subjectID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.subjects[subjectID]
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].clone()
	}
	return out, nil
}
