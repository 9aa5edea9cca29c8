// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package api provides the CampaignGuard HTTP API on the chi router.

# Endpoints

Called by the CRM backend (role service):

	POST /login/check       {identifier} -> {allowed, wait_seconds}
	POST /login/record      {identifier, success[, session_id, subject_id]}
	POST /session/start     {session_id, subject_id}
	POST /session/stop      {session_id}
	POST /session/activity  {session_id[, signal]}
	POST /consent/grant     {subject_id, purpose, version}
	POST /consent/revoke    {subject_id, purpose}

Operator console (roles viewer and operator):

	GET  /alerts?resolved=false[&kind=&subject_id=&limit=]
	POST /alerts/{id}/resolve
	GET  /alerts/stream            websocket alert feed
	GET  /audit/events?subject_id=&action=&since=&until=&limit=
	GET  /consent/history?subject_id=[&purpose=]
	GET  /consent/state?subject_id=&purpose=
	GET  /session/{id}

Unauthenticated:

	GET /health/live, GET /health/ready, GET /metrics

# Responses

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "TRY_AGAIN", "message": "..."}, "meta": {...}}

Domain errors map to statuses in errors.go. A consent change whose audit
record could not be written returns 503 TRY_AGAIN and nothing was stored.
A denied /login/check is a 200 with allowed=false and a Retry-After header:
the decision is data for the CRM, not a transport failure.

# Middleware

Request ID, real IP, panic recovery, CORS and security headers are global.
Protected routes add Prometheus request metrics, bearer authentication and
casbin authorization; the login and consent routes add a per-IP httprate
limit.
*/
package api
