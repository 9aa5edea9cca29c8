// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package storage opens the BadgerDB instance shared by the persistent audit,
// consent and alert stores, and runs its value-log garbage collection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory (tests and ephemeral deployments).
	InMemory bool

	// SyncWrites fsyncs every commit. Consent history relies on it.
	SyncWrites bool

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCRatio is the discard ratio passed to RunValueLogGC.
	GCRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:       "/data/campaignguard",
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
		GCRatio:    0.5,
	}
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("storage path is required unless running in memory")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Storage opened")
	return db, nil
}

// OpenInMemory opens an ephemeral database. Used by tests across packages.
func OpenInMemory() (*badger.DB, error) {
	return Open(Config{InMemory: true})
}

// GarbageCollector periodically reclaims value-log space.
// It implements suture.Service.
type GarbageCollector struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
}

// NewGarbageCollector creates a GC service for db.
func NewGarbageCollector(db *badger.DB, cfg Config) *GarbageCollector {
	ratio := cfg.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &GarbageCollector{db: db, interval: cfg.GCInterval, ratio: ratio}
}

// Serve runs GC on every tick until ctx is canceled.
func (g *GarbageCollector) Serve(ctx context.Context) error {
	if g.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.RunOnce(); err != nil {
				logging.Warn().Err(err).Msg("Storage GC failed")
			}
		}
	}
}

// RunOnce runs value-log GC until nothing more can be rewritten.
func (g *GarbageCollector) RunOnce() error {
	for {
		err := g.db.RunValueLogGC(g.ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log gc: %w", err)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (g *GarbageCollector) String() string {
	return "storage-gc"
}
