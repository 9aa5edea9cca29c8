// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package audit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const auditKeyPrefix = "audit:"

// BadgerStore is a Sink persisted in BadgerDB.
//
// Keys are "audit:" + big-endian creation time (ns) + event ID, so a window
// query is a single forward range scan.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerStore creates a store on an open database. A positive retention
// sets a TTL on every written event.
func NewBadgerStore(db *badger.DB, retention time.Duration) *BadgerStore {
	return &BadgerStore{db: db, retention: retention}
}

func eventKey(createdAt time.Time, id string) []byte {
	key := make([]byte, 0, len(auditKeyPrefix)+8+len(id))
	key = append(key, auditKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAt.UnixNano()))
	return append(key, id...)
}

func timeKey(t time.Time) []byte {
	key := make([]byte, 0, len(auditKeyPrefix)+8)
	key = append(key, auditKeyPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
}

// Append persists event.
func (s *BadgerStore) Append(ctx context.Context, event *Event) error {
	if err := event.normalize(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(event.CreatedAt, event.ID), data)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	return nil
}

// Query scans the [Since, Until) key range and filters the rest in memory.
func (s *BadgerStore) Query(ctx context.Context, q Query) ([]Event, error) {
	result := make([]Event, 0)
	prefix := []byte(auditKeyPrefix)

	var upper []byte
	if !q.Until.IsZero() {
		upper = timeKey(q.Until)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if !q.Since.IsZero() {
			start = timeKey(q.Since)
		}

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if upper != nil && bytes.Compare(item.Key(), upper) >= 0 {
				break
			}

			var ev Event
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}
			if q.Matches(&ev) {
				result = append(result, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Key order is time order except for events sharing a nanosecond.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[len(result)-q.Limit:]
	}
	return result, nil
}
