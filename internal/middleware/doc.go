// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package middleware provides the infrastructure HTTP middleware shared by all
CampaignGuard routes.

  - RequestID: X-Request-ID propagation plus request and correlation IDs in
    the logging context
  - PrometheusMetrics: request count and latency by method, chi route
    pattern and status
  - SecurityHeaders: nosniff, DENY framing, no-store, HSTS behind TLS

Authentication and authorization live in packages auth and authz; CORS and
rate limiting come from go-chi/cors and go-chi/httprate in package api.
*/
package middleware
