// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package auth authenticates operators of the CampaignGuard API.
//
// End users never authenticate here; their credentials belong to the
// external identity provider. Operators (staff who read alerts, audit
// events and consent history) present HS256 Bearer tokens whose roles feed
// the casbin policy in package authz.
//
// Modes:
//   - jwt: Authorization: Bearer <token>; websocket upgrades may use
//     ?access_token=
//   - none: every request acts as [AnonymousSubject] (operator role);
//     refused in production by config validation
package auth
