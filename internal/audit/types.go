// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// Action identifies what an audit event records.
type Action string

// Action constants for audit events.
const (
	ActionLoginSuccess   Action = "login_success"
	ActionLoginFailed    Action = "login_failed"
	ActionLoginLocked    Action = "login_locked"
	ActionSessionStarted Action = "session_started"
	ActionSessionTimeout Action = "session_timeout"
	ActionSessionEnded   Action = "session_ended"
	ActionConsentGranted Action = "consent_granted"
	ActionConsentRevoked Action = "consent_revoked"
	// ActionConsentRolledBack voids a consent event whose record was never
	// stored. Metadata "rolled_back" holds the voided event ID.
	ActionConsentRolledBack Action = "consent_rolled_back"
	ActionRoleChanged    Action = "role_changed"
	ActionAlertRaised    Action = "alert_raised"
	ActionAlertResolved  Action = "alert_resolved"
)

// Errors returned by sinks.
var (
	// ErrInvalidEvent is returned for nil events or events without an action.
	ErrInvalidEvent = errors.New("invalid audit event")

	// ErrSinkUnavailable is returned when an event cannot be persisted.
	ErrSinkUnavailable = errors.New("audit sink unavailable")
)

// Event is one append-only security event.
type Event struct {
	ID        string            `json:"id"`
	SubjectID string            `json:"subject_id,omitempty"`
	Action    Action            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	SourceIP  string            `json:"source_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEvent creates an event with a fresh ID and the current UTC time.
func NewEvent(action Action, subjectID string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// WithMeta sets a metadata key and returns the event for chaining.
func (e *Event) WithMeta(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithSource sets the client address and user agent.
func (e *Event) WithSource(ip, userAgent string) *Event {
	e.SourceIP = ip
	e.UserAgent = userAgent
	return e
}

// normalize fills in a missing ID or timestamp and validates the action.
func (e *Event) normalize() error {
	if e == nil || e.Action == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// clone returns a deep copy so stored events cannot be mutated by callers.
func (e *Event) clone() Event {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Query filters events. Zero values mean "no constraint".
type Query struct {
	SubjectID string
	Actions   []Action
	// Since is inclusive.
	Since time.Time
	// Until is exclusive.
	Until time.Time
	// Limit keeps the most recent N matches (still returned oldest first).
	Limit int
}

// Matches reports whether e satisfies the filter.
func (q *Query) Matches(e *Event) bool {
	if q.SubjectID != "" && e.SubjectID != q.SubjectID {
		return false
	}
	if len(q.Actions) > 0 {
		found := false
		for _, a := range q.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.CreatedAt.Before(q.Until) {
		return false
	}
	return true
}

// Sink is the append-only audit log collaborator.
type Sink interface {
	// Append persists one event. Implementations fill ID and CreatedAt when empty.
	Append(ctx context.Context, event *Event) error

	// Query returns matching events ordered by CreatedAt, oldest first.
	Query(ctx context.Context, q Query) ([]Event, error)
}

// Recorder accepts events on a best-effort basis and never blocks.
// Satisfied by *Writer.
type Recorder interface {
	Record(event *Event)
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(*Event) {}

// SinkRecorder records events synchronously into a Sink and logs failures.
// It suits tools and tests that need events visible as soon as Record returns.
type SinkRecorder struct {
	Sink Sink
}

// Record implements Recorder.
func (r SinkRecorder) Record(event *Event) {
	if err := r.Sink.Append(context.Background(), event); err != nil {
		logging.Warn().Err(err).Msg("Audit append failed")
	}
}
