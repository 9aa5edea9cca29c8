// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package consent tracks per-subject, per-purpose consent as an append-only
// history.
//
// Each (subject, purpose) pair moves NONE -> GRANTED -> REVOKED -> GRANTED ...
// and every transition appends a new Record; history is never rewritten. A
// transition is valid only once its audit event is durably stored, so the
// tracker writes the audit event first and refuses the change if that fails.
package consent

import (
	"context"
	"fmt"
	"iter"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/keylock"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/metrics"
)

const (
	maxSubjectLength = 128
	maxVersionLength = 32
)

// Config holds tracker settings.
type Config struct {
	// AuditTimeout bounds the durable audit append for one transition.
	AuditTimeout time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{AuditTimeout: 5 * time.Second}
}

// Tracker is the consent lifecycle tracker.
type Tracker struct {
	store  Store
	sink   audit.Sink
	config Config
	locks  *keylock.Map
	now    func() time.Time
}

// NewTracker creates a tracker. sink receives consent audit events
// synchronously.
func NewTracker(store Store, sink audit.Sink, config Config) *Tracker {
	if config.AuditTimeout <= 0 {
		config.AuditTimeout = DefaultConfig().AuditTimeout
	}
	return &Tracker{
		store:  store,
		sink:   sink,
		config: config,
		locks:  keylock.New(),
		now:    time.Now,
	}
}

func validSubject(subjectID string) error {
	if subjectID == "" || len(subjectID) > maxSubjectLength {
		return ErrInvalidSubject
	}
	for _, r := range subjectID {
		if unicode.IsControl(r) {
			return ErrInvalidSubject
		}
	}
	return nil
}

func validate(subjectID string, purpose Purpose) error {
	if err := validSubject(subjectID); err != nil {
		return err
	}
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}
	return nil
}

func pairKey(subjectID string, purpose Purpose) string {
	return subjectID + "\x00" + string(purpose)
}

// Grant appends a granted record. Granting an already active purpose is a
// no-op that returns the existing record.
func (t *Tracker) Grant(ctx context.Context, subjectID string, purpose Purpose, version string) (*Record, error) {
	if err := validate(subjectID, purpose); err != nil {
		return nil, err
	}
	if version == "" || len(version) > maxVersionLength {
		return nil, ErrInvalidVersion
	}

	unlock := t.locks.Lock(pairKey(subjectID, purpose))
	defer unlock()

	latest, err := t.store.Latest(ctx, subjectID, purpose)
	if err != nil {
		return nil, fmt.Errorf("read consent state: %w", err)
	}
	if latest != nil && latest.Active() {
		logging.Ctx(ctx).Info().
			Str("subject_id", subjectID).
			Str("purpose", string(purpose)).
			Str("consent_id", latest.ID).
			Msg("Consent already granted, nothing to do")
		return latest, nil
	}

	record := &Record{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Purpose:   purpose,
		Granted:   true,
		GrantedAt: t.now().UTC(),
		Version:   version,
	}
	if err := t.commit(ctx, record, audit.ActionConsentGranted); err != nil {
		return nil, err
	}

	metrics.RecordConsentTransition(string(purpose), true)
	return record, nil
}

// Revoke appends a revocation when the purpose is currently granted. In any
// other state it is a no-op returning the current record, nil for NONE.
func (t *Tracker) Revoke(ctx context.Context, subjectID string, purpose Purpose) (*Record, error) {
	if err := validate(subjectID, purpose); err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(pairKey(subjectID, purpose))
	defer unlock()

	latest, err := t.store.Latest(ctx, subjectID, purpose)
	if err != nil {
		return nil, fmt.Errorf("read consent state: %w", err)
	}
	if latest == nil || !latest.Active() {
		return latest, nil
	}

	revokedAt := t.now().UTC()
	record := &Record{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Purpose:   purpose,
		Granted:   false,
		GrantedAt: latest.GrantedAt,
		RevokedAt: &revokedAt,
		Version:   latest.Version,
	}
	if err := t.commit(ctx, record, audit.ActionConsentRevoked); err != nil {
		return nil, err
	}

	metrics.RecordConsentTransition(string(purpose), false)
	return record, nil
}

// commit writes the audit event, then the record. Nothing is stored when the
// audit write fails.
func (t *Tracker) commit(ctx context.Context, record *Record, action audit.Action) error {
	event := audit.NewEvent(action, record.SubjectID).
		WithMeta("purpose", string(record.Purpose)).
		WithMeta("consent_id", record.ID).
		WithMeta("version", record.Version)

	auditCtx, cancel := context.WithTimeout(ctx, t.config.AuditTimeout)
	err := t.sink.Append(auditCtx, event)
	cancel()
	if err != nil {
		metrics.ConsentRefused.Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("subject_id", record.SubjectID).
			Str("purpose", string(record.Purpose)).
			Str("action", string(action)).
			Msg("Consent change refused, audit write failed")
		return fmt.Errorf("%w: %v", ErrConsentNotRecorded, err)
	}

	if err := t.store.Append(ctx, record); err != nil {
		metrics.ConsentRefused.Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("subject_id", record.SubjectID).
			Str("purpose", string(record.Purpose)).
			Str("audit_event_id", event.ID).
			Msg("Consent record write failed after audit event was stored")
		t.rollback(ctx, record, event)
		return fmt.Errorf("%w: %v", ErrConsentNotRecorded, err)
	}

	logging.Ctx(ctx).Info().
		Str("subject_id", record.SubjectID).
		Str("purpose", string(record.Purpose)).
		Str("action", string(action)).
		Msg("Consent changed")
	return nil
}

// rollback voids an audit event whose consent record could not be stored.
func (t *Tracker) rollback(ctx context.Context, record *Record, voided *audit.Event) {
	event := audit.NewEvent(audit.ActionConsentRolledBack, record.SubjectID).
		WithMeta("purpose", string(record.Purpose)).
		WithMeta("consent_id", record.ID).
		WithMeta("rolled_back", voided.ID)

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.config.AuditTimeout)
	defer cancel()
	if err := t.sink.Append(auditCtx, event); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("subject_id", record.SubjectID).
			Str("audit_event_id", voided.ID).
			Msg("Consent rollback event not stored, audit log holds a change that did not happen")
	}
}

// CurrentState returns the state of one (subject, purpose) pair.
func (t *Tracker) CurrentState(ctx context.Context, subjectID string, purpose Purpose) (State, error) {
	if err := validate(subjectID, purpose); err != nil {
		return State{}, err
	}
	latest, err := t.store.Latest(ctx, subjectID, purpose)
	if err != nil {
		return State{}, fmt.Errorf("read consent state: %w", err)
	}
	return stateOf(subjectID, purpose, latest), nil
}

// History returns the subject's records in insertion order. The sequence is
// a snapshot taken at call time; it can be ranged over any number of times
// and yields copies, so callers cannot alter stored history.
func (t *Tracker) History(ctx context.Context, subjectID string) (iter.Seq[Record], error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}
	records, err := t.store.History(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("read consent history: %w", err)
	}
	return snapshot(records, ""), nil
}

// PurposeHistory is History restricted to one purpose.
func (t *Tracker) PurposeHistory(ctx context.Context, subjectID string, purpose Purpose) (iter.Seq[Record], error) {
	if err := validate(subjectID, purpose); err != nil {
		return nil, err
	}
	records, err := t.store.History(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("read consent history: %w", err)
	}
	return snapshot(records, purpose), nil
}

func snapshot(records []Record, purpose Purpose) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := range records {
			if purpose != "" && records[i].Purpose != purpose {
				continue
			}
			if !yield(records[i].clone()) {
				return
			}
		}
	}
}
