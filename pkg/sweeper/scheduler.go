/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sweeper

import (
	"context"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

// Scheduler runs scan cycles back to back with a fixed pause between the end
// of one cycle and the start of the next. Cycles never overlap.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	clock    Clock
	status   *StatusTracker
	onCycle  func(*models.CycleReport)
	logger   logger.Logger
}

// NewScheduler creates a scheduler. A nil status tracker gets a private one.
func NewScheduler(runner CycleRunner, interval time.Duration, status *StatusTracker, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = models.DefaultInterval
	}

	if status == nil {
		status = NewStatusTracker()
	}

	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    realClock{},
		status:   status,
		logger:   log,
	}
}

// WithClock replaces the clock used for the inter-cycle wait.
func (s *Scheduler) WithClock(clock Clock) *Scheduler {
	s.clock = clock
	return s
}

// OnCycle registers a callback invoked after every cycle.
func (s *Scheduler) OnCycle(fn func(*models.CycleReport)) *Scheduler {
	s.onCycle = fn
	return s
}

// Run blocks until ctx is cancelled. Cancellation is only observed between
// cycles: a cycle in progress always runs to completion, including its write.
func (s *Scheduler) Run(ctx context.Context) error {
	s.status.setRunning(true)
	defer s.status.setRunning(false)

	s.logger.Info().Dur("interval", s.interval).Msg("Scan scheduler started")

	// the cycle must not see shutdown
	cycleCtx := context.WithoutCancel(ctx)

	for {
		report := s.runner.RunCycle(cycleCtx)

		s.status.Observe(report)

		if s.onCycle != nil {
			s.onCycle(report)
		}

		if ctx.Err() != nil {
			s.logger.Info().Msg("Scan scheduler stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scan scheduler stopped")
			return nil
		case <-s.clock.After(s.interval):
		}
	}
}
