// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/campaignguard/internal/auth"
	"github.com/tomtom215/campaignguard/internal/detection"
	"github.com/tomtom215/campaignguard/internal/logging"
	ws "github.com/tomtom215/campaignguard/internal/websocket"
)

// defaultAlertLimit caps GET /alerts when no limit is given.
const defaultAlertLimit = 100

// ResolveRequest is the optional body of POST /alerts/{id}/resolve.
type ResolveRequest struct {
	Note string `json:"note" validate:"omitempty,max=512"`
}

// AlertsList handles GET /alerts?resolved=&kind=&subject_id=&limit=.
func (h *Handler) AlertsList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := AlertQuery{
		Resolved:  query.Get("resolved"),
		Kind:      query.Get("kind"),
		SubjectID: query.Get("subject_id"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			NewResponseWriter(w, r).ValidationError("limit must be an integer", map[string]string{"limit": "limit must be an integer"})
			return
		}
		q.Limit = limit
	}
	if !validateRequest(w, r, &q) {
		return
	}

	filter := detection.AlertFilter{
		Kind:      detection.Kind(q.Kind),
		SubjectID: q.SubjectID,
		Limit:     q.Limit,
	}
	if filter.Limit == 0 {
		filter.Limit = defaultAlertLimit
	}
	if q.Resolved != "" {
		resolved := q.Resolved == "true"
		filter.Resolved = &resolved
	}

	alerts, err := h.deps.Alerts.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []detection.Alert{}
	}
	NewResponseWriter(w, r).SuccessList(alerts, len(alerts))
}

// AlertResolve handles POST /alerts/{id}/resolve. Resolving is permanent;
// resolving twice returns the alert unchanged.
func (h *Handler) AlertResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	resolvedBy := "unknown"
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		resolvedBy = subject.ID
	}

	alert, err := h.deps.Alerts.Resolve(r.Context(), id, resolvedBy, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(alert)
}

// AlertStream handles GET /alerts/stream, upgrading to a websocket that
// receives alert_raised, alert_escalated and alert_resolved messages.
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		logging.Warn().Msg("Alert stream rejected: hub not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("Alert stream unavailable")
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Alert stream upgrade failed")
		return
	}

	subject := "anonymous"
	if s := auth.SubjectFromContext(r.Context()); s != nil {
		subject = s.ID
	}

	client := ws.NewClient(h.deps.Hub, conn, subject)
	select {
	case h.deps.Hub.Register <- client:
		client.Start()
	case <-time.After(upgrader.HandshakeTimeout):
		logging.Warn().Msg("Alert stream rejected: hub not accepting clients")
		_ = conn.Close()
	}
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin accepts upgrades from configured console origins. Requests
// without an Origin header come from non-browser clients that have already
// passed bearer authentication.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.deps.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("Alert stream rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds length before a
// client-supplied value is logged.
func sanitizeLogValue(v string) string {
	const maxLen = 128
	v = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
	if len(v) > maxLen {
		v = v[:maxLen]
	}
	return v
}
