// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package supervisor provides process supervision for CampaignGuard using
suture v4.

# Tree

	RootSupervisor ("campaignguard")
	├── DataSupervisor ("data-layer")
	│   ├── audit-writer
	│   └── badger-gc (badger backend only)
	├── MonitorSupervisor ("monitor-layer")
	│   ├── session-monitor
	│   ├── throttle-sweeper
	│   ├── anomaly-detection
	│   └── alert-feed
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer restarts its own services. A service that returns an error is
restarted with suture's decaying failure counter; a service that returns
because its context was canceled is not.

# Events

Supervisor events (service failures, restarts, backoff) are logged through
sutureslog using the slog bridge from internal/logging, so they land in the
same zerolog stream as the rest of the service.

# Shutdown

Canceling the context passed to Serve stops the tree. Each service gets
ShutdownTimeout to return; UnstoppedServiceReport lists any that did not.
The HTTP server reports not-ready as soon as draining starts.
*/
package supervisor
