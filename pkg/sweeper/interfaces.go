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

//go:generate mockgen -destination=mock_sweeper.go -package=sweeper github.com/carverauto/devicepulse/pkg/sweeper ResultStore,Publisher,CycleRunner

// Package sweeper runs device liveness scan cycles.
package sweeper

import (
	"context"
	"time"

	"github.com/carverauto/devicepulse/pkg/models"
)

// ResultStore persists scan results. AppendBatch is all-or-nothing: on error
// no result of the batch is stored.
type ResultStore interface {
	AppendBatch(ctx context.Context, results []*models.ScanResult) error
}

// Publisher announces finished cycles to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event *models.CycleEvent) error
}

// CycleRunner executes one complete scan cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *models.CycleReport
}

// Clock abstracts time for the scheduler and recorder.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Pair joins a device with the outcome of its probe.
type Pair struct {
	Device  models.Device
	Outcome models.ProbeOutcome
}
