// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// HealthLive handles GET /health/live. It only reports that the process
// serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// HealthReady handles GET /health/ready. Every registered check must pass.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.deps.Readiness))
	for name := range h.deps.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        make(map[string]string, len(names)),
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := h.deps.Readiness[name](ctx)
		cancel()
		if err != nil {
			logging.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			status.Status = "unavailable"
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}

	rw := NewResponseWriter(w, r)
	if status.Status != "ok" {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Not ready", status.Checks)
		return
	}
	rw.Success(status)
}
