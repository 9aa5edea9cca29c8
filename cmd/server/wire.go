// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/campaignguard/internal/api"
	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/config"
	"github.com/tomtom215/campaignguard/internal/consent"
	"github.com/tomtom215/campaignguard/internal/detection"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/session"
	"github.com/tomtom215/campaignguard/internal/storage"
	"github.com/tomtom215/campaignguard/internal/throttle"
)

// stores holds the storage backends selected by configuration.
type stores struct {
	db            *badger.DB
	storageConfig storage.Config
	redis         *redis.Client

	audit         audit.Sink
	consent       consent.Store
	consentBadger *consent.BadgerStore
	alerts        detection.AlertStore
	throttles     throttle.Store
}

func openStores(cfg *config.Config) (*stores, error) {
	s := &stores{}

	switch cfg.Storage.Backend {
	case "badger":
		s.storageConfig = storage.DefaultConfig()
		s.storageConfig.Path = cfg.Storage.Path
		s.storageConfig.SyncWrites = cfg.Storage.SyncWrites
		s.storageConfig.GCInterval = cfg.Storage.GCInterval

		db, err := storage.Open(s.storageConfig)
		if err != nil {
			return nil, err
		}
		s.db = db

		consentStore, err := consent.NewBadgerStore(db)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open consent store: %w", err)
		}
		s.audit = audit.NewBadgerStore(db, cfg.Audit.Retention)
		s.consent = consentStore
		s.consentBadger = consentStore
		s.alerts = detection.NewBadgerStore(db)

	case "memory":
		logging.Warn().Msg("STORAGE_BACKEND=memory: audit log, consent history and alerts are lost on restart")
		s.audit = audit.NewMemoryStore(cfg.Audit.MemoryCapacity)
		s.consent = consent.NewMemoryStore()
		s.alerts = detection.NewMemoryStore()

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Throttle.Store {
	case "redis":
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(context.Background()).Err(); err != nil {
			// The guard fails open on store errors; keep starting.
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable at startup")
		}
		s.throttles = throttle.NewRedisStore(s.redis, cfg.Throttle.EntryTTL)
	default:
		s.throttles = throttle.NewMemoryStore()
	}

	return s, nil
}

// readiness returns the checks behind GET /health/ready.
func (s *stores) readiness() map[string]api.ReadinessCheck {
	checks := make(map[string]api.ReadinessCheck)
	if s.db != nil {
		db := s.db
		checks["storage"] = func(context.Context) error {
			if db.IsClosed() {
				return errors.New("badger database is closed")
			}
			return nil
		}
	}
	if s.redis != nil {
		client := s.redis
		checks["throttle_store"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}

// garbageCollector returns the badger GC service, or nil for memory storage.
func (s *stores) garbageCollector() *storage.GarbageCollector {
	if s.db == nil {
		return nil
	}
	return storage.NewGarbageCollector(s.db, s.storageConfig)
}

// Close releases the backends. Safe on a partially opened set.
func (s *stores) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing redis client")
		}
	}
	// The consent sequence lease must be released before the database closes.
	if s.consentBadger != nil {
		if err := s.consentBadger.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error releasing consent sequence")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}
}

// components are the domain services wired over the stores.
type components struct {
	pubsub   *gochannel.GoChannel
	durable  *audit.PublishingSink
	writer   *audit.Writer
	guard    *throttle.Guard
	sweeper  *throttle.Sweeper
	sessions *session.Monitor
	consent  *consent.Tracker
	engine   *detection.Engine
}

func buildComponents(cfg *config.Config, s *stores) (*components, error) {
	// Every stored audit event is also published in-process so the anomaly
	// engine evaluates promptly instead of waiting for its poll.
	pubsub := audit.NewGoChannel(cfg.Audit.PubSubBuffer)
	durable := audit.NewPublishingSink(s.audit, pubsub)

	writerConfig := audit.DefaultWriterConfig()
	writerConfig.BufferSize = cfg.Audit.BufferSize
	writerConfig.MaxRetries = cfg.Audit.MaxRetries
	writerConfig.RetryBaseDelay = cfg.Audit.RetryBaseDelay
	writerConfig.RetryMaxDelay = cfg.Audit.RetryMaxDelay
	writerConfig.BreakerFailures = cfg.Audit.BreakerFailures
	writer := audit.NewWriter(durable, writerConfig)

	guard := throttle.NewGuard(s.throttles, throttle.Config{
		LockoutThreshold: cfg.Throttle.LockoutThreshold,
		BaseDelay:        cfg.Throttle.BaseDelay(),
		MaxDelay:         cfg.Throttle.MaxDelay(),
		EntryTTL:         cfg.Throttle.EntryTTL,
		SweepInterval:    cfg.Throttle.SweepInterval,
	}, writer)

	sessions := session.NewMonitor(session.Config{
		IdleTimeout:  cfg.Session.IdleTimeout(),
		PollInterval: cfg.Session.PollInterval(),
		Signals:      cfg.Session.Signals,
		Retention:    cfg.Session.Retention,
	}, writer)

	// Consent changes append synchronously to the durable sink: a change
	// that cannot be audited is refused.
	tracker := consent.NewTracker(s.consent, durable, consent.Config{
		AuditTimeout: cfg.Consent.AuditTimeout,
	})

	detectionConfig := detection.DefaultConfig()
	detectionConfig.Window = cfg.Detection.Window()
	detectionConfig.BurstMedium = cfg.Detection.FailedLoginBurstMedium
	detectionConfig.BurstHigh = cfg.Detection.FailedLoginBurstHigh
	detectionConfig.MultiDeviceThreshold = cfg.Detection.MultiDeviceThreshold
	detectionConfig.SessionGrace = cfg.Detection.SessionGrace
	detectionConfig.UserAgentMode = cfg.Detection.UserAgentMode
	detectionConfig.PollInterval = cfg.Detection.PollInterval
	detectionConfig.TriggerInterval = cfg.Detection.TriggerInterval

	engine, err := detection.NewEngine(durable, s.alerts, writer, detectionConfig)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("initialize detection engine: %w", err)
	}
	engine.SetSubscriber(pubsub)

	return &components{
		pubsub:   pubsub,
		durable:  durable,
		writer:   writer,
		guard:    guard,
		sweeper:  throttle.NewSweeper(guard),
		sessions: sessions,
		consent:  tracker,
		engine:   engine,
	}, nil
}

// Close stops in-process fan-out. Called after the supervisor tree stops.
func (c *components) Close() {
	if err := c.pubsub.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing audit pub/sub")
	}
}
