// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package services

import (
	"context"
)

// ContextRunner is a long-running loop that returns when ctx is canceled.
//
// Satisfied by:
//   - *websocket.Hub (alert feed fan-out)
//   - *detection.Engine (anomaly evaluation loop)
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service and names it for
// suture's event log. The runner is restarted by the supervisor if it
// returns before its context is canceled.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// NewAlertFeedService wraps the websocket hub.
func NewAlertFeedService(hub ContextRunner) *RunnerService {
	return NewRunnerService("alert-feed", hub)
}

// NewDetectionService wraps the anomaly detection engine.
func NewDetectionService(engine ContextRunner) *RunnerService {
	return NewRunnerService("anomaly-detection", engine)
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (s *RunnerService) String() string {
	return s.name
}
