// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package audit

import (
	"context"
	"sort"
	"sync"
)

// DefaultMemoryCapacity bounds MemoryStore when no capacity is given.
const DefaultMemoryCapacity = 100_000

// MemoryStore is an in-memory Sink. When full, the oldest events are evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewMemoryStore creates a memory store holding at most capacity events.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		events:   make([]Event, 0, 1024),
		capacity: capacity,
	}
}

// Append stores a copy of event.
func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	if err := event.normalize(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := event.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.capacity {
		// Shift instead of reslicing so the backing array does not grow forever.
		n := copy(s.events, s.events[len(s.events)-s.capacity+1:])
		s.events = s.events[:n]
	}
	s.events = append(s.events, stored)
	return nil
}

// Query returns copies of matching events ordered by CreatedAt.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]Event, 0)
	for i := range s.events {
		if q.Matches(&s.events[i]) {
			result = append(result, s.events[i].clone())
		}
	}
	s.mu.RUnlock()

	// Writers are not globally ordered, so sort on the way out.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[len(result)-q.Limit:]
	}
	return result, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
