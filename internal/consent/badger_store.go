// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package consent

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	consentKeyPrefix = "consent:"
	consentSeqKey    = "consent_seq"
	seqBandwidth     = 128
)

// BadgerStore persists consent history in BadgerDB.
//
// Keys are "consent:" + subject + NUL + big-endian sequence, so a subject's
// history is one prefix scan in insertion order and its latest record for a
// purpose is found by scanning the same prefix backwards.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerStore creates a store on an open database. Close releases the
// sequence lease.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(consentSeqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("consent sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases unused sequence numbers.
func (s *BadgerStore) Close() error {
	return s.seq.Release()
}

func subjectPrefix(subjectID string) []byte {
	key := make([]byte, 0, len(consentKeyPrefix)+len(subjectID)+1)
	key = append(key, consentKeyPrefix...)
	key = append(key, subjectID...)
	return append(key, 0)
}

func recordKey(subjectID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(subjectPrefix(subjectID), seq)
}

// Append implements Store.
func (s *BadgerStore) Append(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Badger sequences start at zero; Seq zero is reserved for "unassigned".
	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next consent sequence: %w", err)
	}
	record.Seq = next + 1

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal consent record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(record.SubjectID, record.Seq), data)
	})
}

// Latest implements Store.
func (s *BadgerStore) Latest(ctx context.Context, subjectID string, purpose Purpose) (*Record, error) {
	prefix := subjectPrefix(subjectID)
	var found *Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= the seek key.
		seek := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode consent record: %w", err)
			}
			if r.Purpose == purpose {
				found = &r
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// History implements Store.
func (s *BadgerStore) History(ctx context.Context, subjectID string) ([]Record, error) {
	prefix := subjectPrefix(subjectID)
	records := make([]Record, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode consent record: %w", err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
