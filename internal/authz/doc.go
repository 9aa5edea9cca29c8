// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package authz enforces the route policy for CampaignGuard using Casbin.
//
//	Request -> auth.Middleware -> authz.Middleware -> Handler
//	               |                    |
//	          Authenticate         Authorize (Casbin)
//
// # Roles
//
//   - viewer: read alerts, the alert stream, audit events, consent history
//     and state, session state
//   - operator: viewer plus POST /alerts/{id}/resolve
//   - service: the CRM backend; login check/record, session
//     start/stop/activity, consent grant/revoke
//
// The model matches paths with keyMatch2, so policy objects may use chi-style
// parameters (/alerts/:id/resolve). GET, HEAD and OPTIONS map to "read";
// every other method maps to "write".
//
// The policy is embedded (policy.csv). CASBIN_POLICY_PATH replaces it with
// a file that is polled for changes.
package authz
