// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package audit is the append-only security event log shared by every
CampaignGuard component.

# Sink

[Sink] is the narrow collaborator interface: Append and Query. Two
implementations ship with the service:

  - [MemoryStore]: bounded in-memory log for development and tests
  - [BadgerStore]: BadgerDB-backed log, keyed by creation time so window
    queries are range scans

Events are never updated or deleted by this package. BadgerStore can apply a
retention TTL at write time; expiry is the only way an event leaves the log.

# Write paths

Two write paths exist because the callers have different guarantees:

  - Best-effort ([Writer]): login and session decisions must never wait on
    the audit log. Events are queued in a bounded buffer and delivered in
    order by a single goroutine with exponential backoff, behind a circuit
    breaker. Past the retry budget, or when the buffer is full, the event is
    dropped with a warning and counted in metrics.
  - Durable (Sink.Append directly): consent changes are only valid if they
    are recorded, so the consent tracker appends synchronously and refuses
    the change on error.

# Fan-out

[PublishingSink] decorates any Sink and publishes each stored event on the
[TopicEvents] Watermill topic. The anomaly engine subscribes to it to
trigger an evaluation pass as soon as new evidence lands.
*/
package audit
