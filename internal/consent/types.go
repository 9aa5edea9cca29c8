// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package consent

import (
	"errors"
	"regexp"
	"time"
)

// Purpose is a named category of data use.
type Purpose string

// Well-known purposes. Any lower_snake_case name up to 64 characters is
// accepted as well.
const (
	PurposeDataProcessing Purpose = "data_processing"
	PurposeMarketing      Purpose = "marketing"
	PurposeAnalytics      Purpose = "analytics"
	PurposeCookies        Purpose = "cookies"
	PurposeCommunications Purpose = "communications"
)

var purposePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Valid reports whether p is an acceptable purpose name.
func (p Purpose) Valid() bool {
	return purposePattern.MatchString(string(p))
}

// Errors returned by the tracker.
var (
	ErrInvalidSubject = errors.New("invalid subject id")
	ErrInvalidPurpose = errors.New("invalid consent purpose")
	ErrInvalidVersion = errors.New("invalid consent version")

	// ErrConsentNotRecorded means the change could not be durably audited and
	// was refused. Callers should ask the user to try again.
	ErrConsentNotRecorded = errors.New("consent change not recorded, try again")
)

// Status is the derived state of a (subject, purpose) pair.
type Status string

// Consent statuses.
const (
	StatusNone    Status = "none"
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
)

// Record is one immutable consent history entry.
type Record struct {
	ID        string     `json:"id"`
	SubjectID string     `json:"subject_id"`
	Purpose   Purpose    `json:"purpose"`
	Granted   bool       `json:"granted"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	Version   string     `json:"version"`
	// Seq orders records in insertion order.
	Seq uint64 `json:"seq"`
}

// Active reports whether the record is an unrevoked grant.
func (r *Record) Active() bool {
	return r.Granted && r.RevokedAt == nil
}

// clone returns a copy sharing nothing with r.
func (r *Record) clone() Record {
	c := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	return c
}

// State is the current consent state of a (subject, purpose) pair.
type State struct {
	SubjectID string  `json:"subject_id"`
	Purpose   Purpose `json:"purpose"`
	Status    Status  `json:"status"`
	Active    bool    `json:"active"`
	// Record is the latest record, nil for StatusNone.
	Record *Record `json:"record"`
}

func stateOf(subjectID string, purpose Purpose, latest *Record) State {
	s := State{SubjectID: subjectID, Purpose: purpose, Status: StatusNone}
	if latest == nil {
		return s
	}
	c := latest.clone()
	s.Record = &c
	s.Active = c.Active()
	if s.Active {
		s.Status = StatusGranted
	} else {
		s.Status = StatusRevoked
	}
	return s
}
