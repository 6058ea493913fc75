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
	"sync"

	"github.com/carverauto/devicepulse/pkg/models"
)

// StatusTracker keeps running totals of finished cycles for the status endpoint.
type StatusTracker struct {
	mu     sync.RWMutex
	status models.WorkerStatus
}

// NewStatusTracker returns a tracker with zeroed totals and no last cycle.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// Observe records a finished cycle.
func (t *StatusTracker) Observe(report *models.CycleReport) {
	if report == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CyclesRun++

	if report.Status == models.CycleStatusDegraded {
		t.status.DegradedCycles++
	}

	last := *report
	t.status.LastCycle = &last
}

// Status returns a copy of the current status.
func (t *StatusTracker) Status() models.WorkerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := t.status
	if status.LastCycle != nil {
		last := *status.LastCycle
		status.LastCycle = &last
	}

	return status
}

func (t *StatusTracker) setRunning(running bool) {
	t.mu.Lock()
	t.status.Running = running
	t.mu.Unlock()
}
