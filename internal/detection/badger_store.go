// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	alertKeyPrefix = "alert:"
	alertIdxPrefix = "alert_key:"
)

// BadgerStore persists alerts in BadgerDB.
//
// Alerts live under "alert:" + id. A secondary index entry
// "alert_key:" + kind + NUL + subject + NUL + date + NUL + id with an empty
// value makes natural-key lookups a prefix scan.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a store on an open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func alertKey(id string) []byte {
	return []byte(alertKeyPrefix + id)
}

func naturalKeyPrefix(key NaturalKey) []byte {
	b := make([]byte, 0, len(alertIdxPrefix)+len(key.Kind)+len(key.SubjectID)+len(key.Date)+3)
	b = append(b, alertIdxPrefix...)
	b = append(b, key.Kind...)
	b = append(b, 0)
	b = append(b, key.SubjectID...)
	b = append(b, 0)
	b = append(b, key.Date...)
	return append(b, 0)
}

// Save implements AlertStore.
func (s *BadgerStore) Save(ctx context.Context, alert *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(alertKey(alert.ID), data); err != nil {
			return err
		}
		idx := append(naturalKeyPrefix(alert.Key()), alert.ID...)
		return txn.Set(idx, nil)
	})
}

// Get implements AlertStore.
func (s *BadgerStore) Get(_ context.Context, id string) (*Alert, error) {
	var alert Alert
	err := s.db.View(func(txn *badger.Txn) error {
		return getAlert(txn, id, &alert)
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func getAlert(txn *badger.Txn, id string, alert *Alert) error {
	item, err := txn.Get(alertKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrAlertNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, alert); err != nil {
			return fmt.Errorf("decode alert %s: %w", id, err)
		}
		return nil
	})
}

// ByKey implements AlertStore.
func (s *BadgerStore) ByKey(ctx context.Context, key NaturalKey) ([]Alert, error) {
	prefix := naturalKeyPrefix(key)
	alerts := make([]Alert, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(it.Item().Key()[len(prefix):])
			var a Alert
			if err := getAlert(txn, id, &a); err != nil {
				return err
			}
			alerts = append(alerts, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// List implements AlertStore.
func (s *BadgerStore) List(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	prefix := []byte(alertKeyPrefix)
	alerts := make([]Alert, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a Alert
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("decode alert: %w", err)
			}
			if filter.matches(&a) {
				alerts = append(alerts, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return limitAlerts(sortNewestFirst(alerts), filter.Limit), nil
}
