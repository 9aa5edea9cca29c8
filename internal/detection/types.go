// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/campaignguard/internal/audit"
)

// Kind identifies the heuristic that raised an alert.
type Kind string

const (
	// KindFailedLoginBurst flags repeated failed logins for one subject.
	KindFailedLoginBurst Kind = "failed_login_burst"

	// KindMultiDevice flags one subject seen from many user agents.
	KindMultiDevice Kind = "multi_device_activity"

	// KindSessionAnomaly flags an idle timeout not followed by a new login.
	KindSessionAnomaly Kind = "session_anomaly"
)

// Severity indicates how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ErrAlertNotFound is returned for unknown alert IDs.
var ErrAlertNotFound = errors.New("alert not found")

// dateLayout formats the natural-key date.
const dateLayout = "2006-01-02"

// Alert is a security alert raised from audit evidence.
type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subject_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raised_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Date is the UTC day of the latest evidence; with Kind and SubjectID it
	// forms the natural key.
	Date       string     `json:"date"`
	Evidence   []string   `json:"evidence"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	// ResolutionNote is the operator's optional explanation.
	ResolutionNote string `json:"resolution_note,omitempty"`
}

// Key returns the natural key of the alert.
func (a *Alert) Key() NaturalKey {
	return NaturalKey{Kind: a.Kind, SubjectID: a.SubjectID, Date: a.Date}
}

func (a *Alert) clone() Alert {
	c := *a
	c.Evidence = append([]string(nil), a.Evidence...)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// NaturalKey identifies "the same alert" across evaluation passes.
type NaturalKey struct {
	Kind      Kind
	SubjectID string
	Date      string
}

// Finding is one detector verdict before it is reconciled with stored alerts.
type Finding struct {
	Kind      Kind
	SubjectID string
	Severity  Severity
	Message   string
	Evidence  []string
	// LatestAt is the time of the newest evidence event.
	LatestAt time.Time
}

// Key returns the natural key the finding maps to.
func (f *Finding) Key() NaturalKey {
	return NaturalKey{Kind: f.Kind, SubjectID: f.SubjectID, Date: f.LatestAt.UTC().Format(dateLayout)}
}

// Detector evaluates one heuristic over a time-ordered window.
type Detector interface {
	Kind() Kind

	// Detect returns findings for window. now is the evaluation time; window
	// is sorted by CreatedAt and must not be modified.
	Detect(window []audit.Event, now time.Time) []Finding
}

// AlertFilter narrows List results. Zero values mean "no constraint".
type AlertFilter struct {
	Resolved  *bool
	Kind      Kind
	SubjectID string
	Limit     int
}

func (f *AlertFilter) matches(a *Alert) bool {
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	if f.Kind != "" && a.Kind != f.Kind {
		return false
	}
	if f.SubjectID != "" && a.SubjectID != f.SubjectID {
		return false
	}
	return true
}

// AlertStore persists alerts.
type AlertStore interface {
	// Save creates or replaces an alert.
	Save(ctx context.Context, alert *Alert) error

	// Get returns an alert or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*Alert, error)

	// ByKey returns every alert, open or resolved, sharing key.
	ByKey(ctx context.Context, key NaturalKey) ([]Alert, error)

	// List returns matching alerts, newest first.
	List(ctx context.Context, filter AlertFilter) ([]Alert, error)
}

// AlertBroadcaster pushes alert changes to live clients.
type AlertBroadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Broadcast message types.
const (
	MessageAlertRaised    = "alert_raised"
	MessageAlertEscalated = "alert_escalated"
	MessageAlertResolved  = "alert_resolved"
)
