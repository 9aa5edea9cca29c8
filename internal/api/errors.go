// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/consent"
	"github.com/tomtom215/campaignguard/internal/detection"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/session"
	"github.com/tomtom215/campaignguard/internal/throttle"
)

// errorMapping maps a domain sentinel to its HTTP representation.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{throttle.ErrInvalidIdentifier, http.StatusBadRequest, ErrCodeInvalidIdentifier, "Invalid identifier"},

	{session.ErrInvalidSession, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session or subject id"},
	{session.ErrUnknownSignal, http.StatusBadRequest, ErrCodeBadRequest, "Unknown activity signal"},
	{session.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound, "Session not found"},
	{session.ErrSessionExpired, http.StatusGone, ErrCodeGone, "Session expired"},
	{session.ErrSessionEnded, http.StatusGone, ErrCodeGone, "Session ended"},
	{session.ErrSessionExists, http.StatusConflict, ErrCodeConflict, "Session already active for another subject"},
	{session.ErrMonitorStopped, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Shutting down, session not monitored"},

	{consent.ErrInvalidSubject, http.StatusBadRequest, ErrCodeBadRequest, "Invalid subject id"},
	{consent.ErrInvalidPurpose, http.StatusBadRequest, ErrCodeBadRequest, "Invalid consent purpose"},
	{consent.ErrInvalidVersion, http.StatusBadRequest, ErrCodeBadRequest, "Invalid consent version"},
	{consent.ErrConsentNotRecorded, http.StatusServiceUnavailable, ErrCodeTryAgain, "Consent change could not be recorded, try again"},

	{detection.ErrAlertNotFound, http.StatusNotFound, ErrCodeNotFound, "Alert not found"},

	{audit.ErrSinkUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit log unavailable"},
}

// writeDomainError writes err using its mapped status. Unmapped errors are
// logged and reported as 500 without leaking their text.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Request refused")
			}
			rw.Error(m.status, m.code, m.message)
			return
		}
	}

	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	rw.InternalError("Internal server error")
}
