// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/campaignguard/internal/session"
)

// SessionStart handles POST /session/start: begin and monitor a session.
func (h *Handler) SessionStart(w http.ResponseWriter, r *http.Request) {
	var req SessionStartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.beginSession(req.SessionID, req.SubjectID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(sess)
}

// SessionStop handles POST /session/stop (logout). It stops the watcher and
// ends the session; stopping an unknown or terminal session succeeds.
func (h *Handler) SessionStop(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.deps.Sessions.End(req.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		h.deps.Sessions.StopMonitor(req.SessionID)
		NewResponseWriter(w, r).Success(map[string]interface{}{
			"session_id": req.SessionID,
			"stopped":    true,
		})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(sess)
}

// SessionActivity handles POST /session/activity. Activity after the idle
// deadline returns 410 and the session stays expired.
func (h *Handler) SessionActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.deps.Sessions.TrackSignal(req.SessionID, req.Signal); err != nil {
		writeDomainError(w, r, err)
		return
	}

	sess, err := h.deps.Sessions.Get(req.SessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(sess)
}

// SessionGet handles GET /session/{id}.
func (h *Handler) SessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(sess)
}
