// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package main is the CampaignGuard server.

CampaignGuard sits beside a political-campaign CRM and enforces access
security for volunteer and staff accounts: login throttling with
exponential lockout, idle-session sign-out, GDPR consent history, anomaly
alerts for operators, and an append-only audit log.

# Startup

 1. Configuration: koanf v2 (defaults, optional config.yaml, environment)
 2. Storage: BadgerDB for audit, consent and alerts (or memory), Redis or
    memory for throttle records
 3. Audit fan-out: watermill gochannel publishing every stored event
 4. Components: throttle guard, session monitor, consent tracker,
    anomaly engine, alert feed hub
 5. HTTP: chi router with JWT authentication and casbin authorization
 6. Supervision: suture tree with data, monitor and api layers

The process stops gracefully on SIGINT or SIGTERM.

# Tokens

With AUTH_MODE=jwt every API call needs a bearer token. Tokens for the CRM
backend and operator consoles are issued offline:

	campaignguard -issue-token crm-backend -roles service -ttl 720h
	campaignguard -issue-token alice -roles operator

# Example

	export JWT_SECRET=$(openssl rand -base64 32)
	export STORAGE_PATH=/var/lib/campaignguard
	export CORS_ORIGINS=https://console.campaign.example
	./campaignguard
*/
package main
