// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package websocket provides the live alert feed for operator consoles.

The detection engine calls [Hub.BroadcastJSON] whenever an alert is raised,
escalated or resolved; the hub fans the message out to every connected
client served from GET /alerts/stream.

	┌───────────────────┐
	│ detection.Engine  │
	└─────────┬─────────┘
	          │ BroadcastJSON
	┌─────────┴─────────┐
	│        Hub        │
	└─────────┬─────────┘
	   ┌──────┼──────┐
	Client  Client  Client

Each client has two goroutines:
  - readPump: reads pings, detects disconnects
  - writePump: writes queued messages and keepalive pings

Messages are JSON objects:

	{"type": "alert_raised", "data": {...SecurityAlert...}}

Types are alert_raised, alert_escalated, alert_resolved and pong. Delivery
is best effort: a full hub queue drops the message and a client that cannot
keep up is disconnected. Consoles should reload GET /alerts after
reconnecting.

The hub runs under the supervisor via RunWithContext; cancelling the
context closes every client.
*/
package websocket
