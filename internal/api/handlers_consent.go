// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"iter"
	"net/http"

	"github.com/tomtom215/campaignguard/internal/consent"
)

// ConsentGrant handles POST /consent/grant. Granting an active purpose
// returns the existing record.
func (h *Handler) ConsentGrant(w http.ResponseWriter, r *http.Request) {
	var req ConsentGrantRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.deps.Consent.Grant(r.Context(), req.SubjectID, consent.Purpose(req.Purpose), req.Version)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(record)
}

// ConsentRevoke handles POST /consent/revoke. Revoking a purpose that is not
// granted returns the current terminal record, or null when none exists.
func (h *Handler) ConsentRevoke(w http.ResponseWriter, r *http.Request) {
	var req ConsentRevokeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.deps.Consent.Revoke(r.Context(), req.SubjectID, consent.Purpose(req.Purpose))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(record)
}

// ConsentHistory handles GET /consent/history?subject_id=[&purpose=].
func (h *Handler) ConsentHistory(w http.ResponseWriter, r *http.Request) {
	q := ConsentQuery{
		SubjectID: r.URL.Query().Get("subject_id"),
		Purpose:   r.URL.Query().Get("purpose"),
	}
	if !validateRequest(w, r, &q) {
		return
	}

	var (
		seq iter.Seq[consent.Record]
		err error
	)
	if q.Purpose != "" {
		seq, err = h.deps.Consent.PurposeHistory(r.Context(), q.SubjectID, consent.Purpose(q.Purpose))
	} else {
		seq, err = h.deps.Consent.History(r.Context(), q.SubjectID)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	records := make([]consent.Record, 0)
	for rec := range seq {
		records = append(records, rec)
	}
	NewResponseWriter(w, r).SuccessList(records, len(records))
}

// ConsentState handles GET /consent/state?subject_id=&purpose=.
func (h *Handler) ConsentState(w http.ResponseWriter, r *http.Request) {
	q := ConsentQuery{
		SubjectID: r.URL.Query().Get("subject_id"),
		Purpose:   r.URL.Query().Get("purpose"),
	}
	if !validateRequest(w, r, &q) {
		return
	}
	if q.Purpose == "" {
		NewResponseWriter(w, r).ValidationError("purpose is required", map[string]string{"purpose": "purpose is required"})
		return
	}

	state, err := h.deps.Consent.CurrentState(r.Context(), q.SubjectID, consent.Purpose(q.Purpose))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(state)
}
