// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/campaignguard/internal/auth"
	"github.com/tomtom215/campaignguard/internal/authz"
	"github.com/tomtom215/campaignguard/internal/middleware"
)

// Router wires the handler behind authentication, authorization and the
// transport middleware.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. chiConfig may be nil for defaults.
func NewRouter(handler *Handler, authn *auth.Middleware, authzMiddleware *authz.Middleware, chiConfig *ChiMiddlewareConfig) (*Router, error) {
	switch {
	case handler == nil:
		return nil, errors.New("api: handler is required")
	case authn == nil:
		return nil, errors.New("api: auth middleware is required")
	case authzMiddleware == nil:
		return nil, errors.New("api: authz middleware is required")
	}
	return &Router{
		handler:       handler,
		auth:          authn,
		authz:         authzMiddleware,
		chiMiddleware: NewChiMiddleware(chiConfig),
	}, nil
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	// Unauthenticated: probes and scraping.
	r.Get("/health/live", router.handler.HealthLive)
	r.Get("/health/ready", router.handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	// Everything else requires an authenticated subject whose role grants
	// the path. The group's middleware runs after routing, so the route
	// pattern is known to metrics and authorization.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.auth.Authenticate)
		r.Use(router.authz.AuthorizeRequest)

		limited := r.With(router.chiMiddleware.RateLimitByIP())

		limited.Post("/login/check", router.handler.LoginCheck)
		limited.Post("/login/record", router.handler.LoginRecord)

		r.Post("/session/start", router.handler.SessionStart)
		r.Post("/session/stop", router.handler.SessionStop)
		r.Post("/session/activity", router.handler.SessionActivity)
		r.Get("/session/{id}", router.handler.SessionGet)

		limited.Post("/consent/grant", router.handler.ConsentGrant)
		limited.Post("/consent/revoke", router.handler.ConsentRevoke)
		r.Get("/consent/history", router.handler.ConsentHistory)
		r.Get("/consent/state", router.handler.ConsentState)

		r.Get("/alerts", router.handler.AlertsList)
		r.Post("/alerts/{id}/resolve", router.handler.AlertResolve)
		r.Get("/alerts/stream", router.handler.AlertStream)

		r.Get("/audit/events", router.handler.AuditEvents)
	})

	return r
}
