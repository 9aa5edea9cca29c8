// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

// Request bodies and query parameters, validated with
// go-playground/validator. Identifiers are re-validated by the domain
// packages; these tags reject obviously malformed input early.

// LoginCheckRequest is the body of POST /login/check.
type LoginCheckRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254,printable"`
}

// LoginRecordRequest is the body of POST /login/record. SessionID and
// SubjectID together begin a monitored session on success.
type LoginRecordRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254,printable"`
	Success    *bool  `json:"success" validate:"required"`
	SessionID  string `json:"session_id" validate:"omitempty,max=128,printable"`
	SubjectID  string `json:"subject_id" validate:"required_with=SessionID,max=128,printable"`
}

// SessionStartRequest is the body of POST /session/start.
type SessionStartRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128,printable"`
	SubjectID string `json:"subject_id" validate:"required,max=128,printable"`
}

// SessionRequest is the body of POST /session/stop.
type SessionRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128,printable"`
}

// ActivityRequest is the body of POST /session/activity.
type ActivityRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128,printable"`
	Signal    string `json:"signal" validate:"omitempty,max=32"`
}

// ConsentGrantRequest is the body of POST /consent/grant.
type ConsentGrantRequest struct {
	SubjectID string `json:"subject_id" validate:"required,max=128,printable"`
	Purpose   string `json:"purpose" validate:"required,purpose"`
	Version   string `json:"version" validate:"required,max=32,printable"`
}

// ConsentRevokeRequest is the body of POST /consent/revoke.
type ConsentRevokeRequest struct {
	SubjectID string `json:"subject_id" validate:"required,max=128,printable"`
	Purpose   string `json:"purpose" validate:"required,purpose"`
}

// ConsentQuery holds GET /consent/history and /consent/state parameters.
type ConsentQuery struct {
	SubjectID string `json:"subject_id" validate:"required,max=128,printable"`
	Purpose   string `json:"purpose" validate:"omitempty,purpose"`
}

// AlertQuery holds GET /alerts parameters.
type AlertQuery struct {
	Resolved  string `json:"resolved" validate:"omitempty,oneof=true false"`
	Kind      string `json:"kind" validate:"omitempty,oneof=failed_login_burst multi_device_activity session_anomaly"`
	SubjectID string `json:"subject_id" validate:"omitempty,max=128,printable"`
	Limit     int    `json:"limit" validate:"gte=0,lte=1000"`
}

// AuditQuery holds GET /audit/events parameters.
type AuditQuery struct {
	SubjectID string `json:"subject_id" validate:"omitempty,max=128,printable"`
	Action    string `json:"action" validate:"omitempty,max=64,printable"`
	Since     string `json:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Until     string `json:"until" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit     int    `json:"limit" validate:"gte=0,lte=1000"`
}
