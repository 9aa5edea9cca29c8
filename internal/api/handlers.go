// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/consent"
	"github.com/tomtom215/campaignguard/internal/detection"
	"github.com/tomtom215/campaignguard/internal/session"
	"github.com/tomtom215/campaignguard/internal/throttle"
	"github.com/tomtom215/campaignguard/internal/validation"
	ws "github.com/tomtom215/campaignguard/internal/websocket"
)

// maxBodyBytes bounds request bodies; every body here is a few short fields.
const maxBodyBytes = 16 * 1024

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the components the handlers drive.
type Dependencies struct {
	Guard    *throttle.Guard
	Sessions *session.Monitor
	Consent  *consent.Tracker
	Alerts   *detection.Engine
	// Audit serves the operator audit query endpoint.
	Audit audit.Sink
	// Hub serves the alert feed; nil disables GET /alerts/stream.
	Hub *ws.Hub
	// AllowedOrigins are accepted on websocket upgrades ("*" allows any).
	AllowedOrigins []string
	// Readiness checks run by GET /health/ready, by name.
	Readiness map[string]ReadinessCheck
}

// Handler serves the CampaignGuard HTTP API.
//
// Handler methods are split across files by resource:
//   - handlers_login.go: /login/check, /login/record
//   - handlers_session.go: /session/*
//   - handlers_consent.go: /consent/*
//   - handlers_alerts.go: /alerts, /alerts/{id}/resolve, /alerts/stream
//   - handlers_audit.go: /audit/events
//   - handlers_health.go: /health/live, /health/ready
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a handler. Guard, Sessions, Consent, Alerts and Audit
// are required.
func NewHandler(deps Dependencies) (*Handler, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("api: throttle guard is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session monitor is required")
	case deps.Consent == nil:
		return nil, errors.New("api: consent tracker is required")
	case deps.Alerts == nil:
		return nil, errors.New("api: detection engine is required")
	case deps.Audit == nil:
		return nil, errors.New("api: audit sink is required")
	}
	return &Handler{deps: deps, startTime: time.Now()}, nil
}

// decodeBody decodes a JSON body into dst and validates it. It writes the
// error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		NewResponseWriter(w, r).BadRequest(msg)
		return false
	}
	return validateRequest(w, r, dst)
}

// validateRequest validates dst with go-playground/validator and writes a
// VALIDATION_FAILED response on failure.
func validateRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if verr := validation.ValidateStruct(dst); verr != nil {
		NewResponseWriter(w, r).ValidationError(verr.Error(), verr.Details())
		return false
	}
	return true
}

// clientIP returns the caller's address; chi's RealIP middleware has already
// applied proxy headers to RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedUserAgent prefers the end user's agent relayed by the CRM backend
// over the backend's own.
func forwardedUserAgent(r *http.Request) string {
	if ua := strings.TrimSpace(r.Header.Get("X-Forwarded-User-Agent")); ua != "" {
		return ua
	}
	return r.UserAgent()
}
