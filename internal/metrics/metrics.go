// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package metrics holds the Prometheus instrumentation for CampaignGuard.
//
// Metrics are package-level promauto collectors registered on the default
// registry and exposed at /metrics. Callers use the Record* helpers rather
// than touching label sets directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campaignguard"

var (
	// Login throttle
	ThrottleDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "decisions_total",
			Help:      "Login throttle check results",
		},
		[]string{"result"}, // "allowed", "denied"
	)

	ThrottleLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "lockouts_total",
			Help:      "Failed attempts that set or extended a lockout",
		},
	)

	ThrottleRecordsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "records_swept_total",
			Help:      "Idle attempt records removed by the sweeper",
		},
	)

	// Session monitor
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently in the ACTIVE state",
		},
	)

	SessionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "timeouts_total",
			Help:      "Sessions expired by the idle timeout",
		},
	)

	// Consent
	ConsentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consent",
			Name:      "transitions_total",
			Help:      "Consent state changes by purpose",
		},
		[]string{"purpose", "transition"}, // "granted", "revoked"
	)

	ConsentRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consent",
			Name:      "refused_total",
			Help:      "Consent changes refused because the audit sink was unavailable",
		},
	)

	// Anomaly detection
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "alerts_raised_total",
			Help:      "Security alerts raised or escalated",
		},
		[]string{"kind", "severity"},
	)

	AlertsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "alerts_resolved_total",
			Help:      "Security alerts resolved by an operator",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of one anomaly evaluation pass",
			Buckets:   prometheus.DefBuckets,
		},
	)

	EvaluationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "evaluation_errors_total",
			Help:      "Anomaly evaluation passes that failed",
		},
	)

	// Audit writer
	AuditEventsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_written_total",
			Help:      "Audit events persisted by the buffered writer",
		},
	)

	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Audit events dropped by the buffered writer",
		},
		[]string{"reason"}, // "buffer_full", "retries_exhausted"
	)

	AuditWriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_retries_total",
			Help:      "Audit append attempts that were retried",
		},
	)

	AuditBufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "buffer_depth",
			Help:      "Audit events waiting in the write buffer",
		},
	)

	AuditBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "breaker_state",
			Help:      "Audit sink circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	AlertFeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "alert_feed_clients",
			Help:      "Connected websocket alert feed clients",
		},
	)
)

// RecordThrottleDecision records the outcome of a throttle check.
func RecordThrottleDecision(allowed bool) {
	if allowed {
		ThrottleDecisions.WithLabelValues("allowed").Inc()
		return
	}
	ThrottleDecisions.WithLabelValues("denied").Inc()
}

// RecordConsentTransition records a grant or revoke for a purpose.
func RecordConsentTransition(purpose string, granted bool) {
	transition := "revoked"
	if granted {
		transition = "granted"
	}
	ConsentTransitions.WithLabelValues(purpose, transition).Inc()
}

// RecordAlert records a raised or escalated alert.
func RecordAlert(kind, severity string) {
	AlertsRaised.WithLabelValues(kind, severity).Inc()
}

// RecordEvaluation records the duration and outcome of an evaluation pass.
func RecordEvaluation(duration time.Duration, err error) {
	EvaluationDuration.Observe(duration.Seconds())
	if err != nil {
		EvaluationErrors.Inc()
	}
}

// RecordAuditDrop records an audit event dropped by the buffered writer.
func RecordAuditDrop(reason string) {
	AuditEventsDropped.WithLabelValues(reason).Inc()
}

// RecordAPIRequest records an HTTP request against its chi route pattern.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
