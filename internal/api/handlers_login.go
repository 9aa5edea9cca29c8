// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/session"
	"github.com/tomtom215/campaignguard/internal/throttle"
)

// LoginRecordResponse is the result of POST /login/record.
type LoginRecordResponse struct {
	throttle.Decision
	// Session is set when a successful login began a monitored session.
	Session *session.Session `json:"session,omitempty"`
}

// LoginCheck handles POST /login/check. It answers before the credential is
// sent to the identity provider.
func (h *Handler) LoginCheck(w http.ResponseWriter, r *http.Request) {
	var req LoginCheckRequest
	if !decodeBody(w, r, &req) {
		return
	}

	decision, err := h.deps.Guard.Check(r.Context(), req.Identifier)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.WaitSeconds))
	}
	NewResponseWriter(w, r).Success(decision)
}

// LoginRecord handles POST /login/record with the identity provider's
// verdict. A success with session_id and subject_id begins a monitored
// session.
func (h *Handler) LoginRecord(w http.ResponseWriter, r *http.Request) {
	var req LoginRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	decision, err := h.deps.Guard.RecordAttempt(r.Context(), throttle.Attempt{
		Identifier: req.Identifier,
		Success:    *req.Success,
		SubjectID:  req.SubjectID,
		SourceIP:   clientIP(r),
		UserAgent:  forwardedUserAgent(r),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := LoginRecordResponse{Decision: decision}
	if *req.Success && req.SessionID != "" {
		sess, err := h.beginSession(req.SessionID, req.SubjectID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		resp.Session = &sess
	}

	NewResponseWriter(w, r).Success(resp)
}

// beginSession enters ACTIVE and starts the idle watcher.
func (h *Handler) beginSession(sessionID, subjectID string) (session.Session, error) {
	sess, err := h.deps.Sessions.Begin(sessionID, subjectID)
	if err != nil {
		return session.Session{}, err
	}
	if err := h.deps.Sessions.StartMonitor(sessionID, onSessionTimeout); err != nil {
		return session.Session{}, err
	}
	sess.Monitored = true
	return sess, nil
}

// onSessionTimeout runs once per expired session. The monitor has already
// recorded session_timeout; the CRM learns of the sign-out on its next
// activity call (410).
func onSessionTimeout(s session.Session) {
	logging.Info().
		Str("session_id", logging.MaskSessionID(s.SessionID)).
		Str("subject_id", s.SubjectID).
		Time("last_activity_at", s.LastActivityAt).
		Msg("Session expired after inactivity")
}
