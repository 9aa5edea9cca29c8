// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package detection derives security alerts from the audit log using
// deterministic heuristics.
//
// Detection Architecture:
//
//	audit.Sink --(window query)--> Engine.Evaluate --> AlertStore
//	    |                              |                  |
//	    v                              v                  v
//	audit.events topic ---> trigger  Detectors      WebSocket feed
//
// Each pass takes an immutable, time-sorted snapshot of the window (default
// 24h) and runs every Detector over it:
//   - Failed Login Burst: login_failed count per subject, medium at 3, high at 5
//   - Multi-Device Activity: more than 3 distinct user agents for a subject
//   - Session Anomaly: a session_timeout with no login_success within 5 minutes
//
// Findings are reconciled against stored alerts by natural key
// (kind, subject, UTC date of the newest evidence). An open alert absorbs new
// evidence and can only escalate in severity; re-running a pass on the same
// window changes nothing. Resolution is an operator action and is permanent.
// A resolved key is raised again only when evidence appears that the
// resolved alerts did not cover.
package detection
