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

	"github.com/tomtom215/campaignguard/internal/audit"
)

// defaultAuditLimit caps GET /audit/events when no limit is given.
const defaultAuditLimit = 200

// AuditEvents handles GET /audit/events?subject_id=&action=&since=&until=&limit=.
// action accepts a comma-separated list. Events are returned oldest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := AuditQuery{
		SubjectID: query.Get("subject_id"),
		Action:    query.Get("action"),
		Since:     query.Get("since"),
		Until:     query.Get("until"),
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

	filter := audit.Query{SubjectID: q.SubjectID, Limit: q.Limit}
	if filter.Limit == 0 {
		filter.Limit = defaultAuditLimit
	}
	if q.Action != "" {
		for _, a := range strings.Split(q.Action, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, audit.Action(a))
			}
		}
	}
	// Validated as RFC3339 above.
	if q.Since != "" {
		filter.Since, _ = time.Parse(time.RFC3339, q.Since)
	}
	if q.Until != "" {
		filter.Until, _ = time.Parse(time.RFC3339, q.Until)
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		NewResponseWriter(w, r).ValidationError("until must be after since", map[string]string{"until": "until must be after since"})
		return
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	NewResponseWriter(w, r).SuccessList(events, len(events))
}
