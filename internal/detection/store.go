// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps alerts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]Alert
	byKey  map[NaturalKey][]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]Alert),
		byKey:  make(map[NaturalKey][]string),
	}
}

// Save implements AlertStore.
func (s *MemoryStore) Save(ctx context.Context, alert *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; !exists {
		key := alert.Key()
		s.byKey[key] = append(s.byKey[key], alert.ID)
	}
	s.alerts[alert.ID] = alert.clone()
	return nil
}

// Get implements AlertStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	c := a.clone()
	return &c, nil
}

// ByKey implements AlertStore.
func (s *MemoryStore) ByKey(_ context.Context, key NaturalKey) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byKey[key]
	out := make([]Alert, 0, len(ids))
	for _, id := range ids {
		a := s.alerts[id]
		out = append(out, a.clone())
	}
	return out, nil
}

// List implements AlertStore.
func (s *MemoryStore) List(_ context.Context, filter AlertFilter) ([]Alert, error) {
	s.mu.RLock()
	out := make([]Alert, 0, len(s.alerts))
	for id := range s.alerts {
		a := s.alerts[id]
		if filter.matches(&a) {
			out = append(out, a.clone())
		}
	}
	s.mu.RUnlock()

	return limitAlerts(sortNewestFirst(out), filter.Limit), nil
}

func sortNewestFirst(alerts []Alert) []Alert {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].RaisedAt.Equal(alerts[j].RaisedAt) {
			return alerts[i].RaisedAt.After(alerts[j].RaisedAt)
		}
		return alerts[i].ID > alerts[j].ID
	})
	return alerts
}

func limitAlerts(alerts []Alert, limit int) []Alert {
	if limit > 0 && len(alerts) > limit {
		return alerts[:limit]
	}
	return alerts
}
