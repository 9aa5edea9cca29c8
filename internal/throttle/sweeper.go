// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"time"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// Sweeper periodically removes idle throttle records. It implements
// suture.Service.
type Sweeper struct {
	guard    *Guard
	interval time.Duration
}

// NewSweeper creates a sweeper running at the guard's SweepInterval.
func NewSweeper(guard *Guard) *Sweeper {
	return &Sweeper{guard: guard, interval: guard.config.SweepInterval}
}

// Serve sweeps until ctx is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.guard.Sweep(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("Throttle sweep failed")
				continue
			}
			if removed > 0 {
				logging.Debug().Int("count", removed).Msg("Swept idle throttle records")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Sweeper) String() string {
	return "throttle-sweeper"
}
