// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package services provides suture.Service wrappers for CampaignGuard
components whose lifecycle is not already Serve(ctx) error.

Components that implement Serve directly (audit.Writer, session.Monitor,
throttle.Sweeper, storage.GarbageCollector) are added to the tree as they
are. The wrappers here cover the rest:

HTTPServerService:
  - Translates ListenAndServe/Shutdown into Serve
  - Reports not-ready while draining, for GET /health/ready

RunnerService:
  - Adapts RunWithContext loops: the websocket alert feed and the anomaly
    detection engine

# Usage

	server := &http.Server{Addr: cfg.Server.Addr(), Handler: handler}
	httpSvc := services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout)
	tree.AddAPIService(httpSvc)

	tree.AddMonitorService(services.NewAlertFeedService(hub))
	tree.AddMonitorService(services.NewDetectionService(engine))
*/
package services
