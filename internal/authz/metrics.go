// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts authorization decisions by route pattern, action and outcome.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignguard_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"route", "action", "decision"},
	)

	// CacheLookups counts decision cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignguard_authz_cache_lookups_total",
			Help: "Authorization decision cache lookups by result",
		},
		[]string{"result"},
	)

	// PolicyRules reports the number of loaded policy and grouping rules.
	PolicyRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaignguard_authz_policy_rules",
			Help: "Number of loaded authorization rules",
		},
	)
)

func recordDecision(route, action string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	Decisions.WithLabelValues(route, action, outcome).Inc()
}
