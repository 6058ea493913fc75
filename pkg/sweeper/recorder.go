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

// Recorder turns probe outcomes into scan results and writes them as one batch.
type Recorder struct {
	store          ResultStore
	persistTimeout time.Duration
	clock          Clock
	logger         logger.Logger
}

// NewRecorder creates a recorder. A non-positive persistTimeout leaves the
// write bounded only by ctx.
func NewRecorder(store ResultStore, persistTimeout time.Duration, log logger.Logger) *Recorder {
	return &Recorder{
		store:          store,
		persistTimeout: persistTimeout,
		clock:          realClock{},
		logger:         log,
	}
}

// WithClock replaces the clock that stamps observation times.
func (r *Recorder) WithClock(clock Clock) *Recorder {
	r.clock = clock
	return r
}

// Record writes one result per pair. All results share one observation time
// taken here, at persistence time. A store failure is reported, never retried.
func (r *Recorder) Record(ctx context.Context, cycleID string, pairs []Pair) (models.RecordReport, []*models.ScanResult) {
	report := models.RecordReport{Attempted: len(pairs)}
	if len(pairs) == 0 {
		return report, nil
	}

	observedAt := r.clock.Now().UTC()
	report.ObservedAt = observedAt

	results := make([]*models.ScanResult, 0, len(pairs))

	for _, pair := range pairs {
		result := &models.ScanResult{
			DeviceID:   pair.Device.ID,
			CycleID:    cycleID,
			Reachable:  pair.Outcome.Reachable,
			ObservedAt: observedAt,
		}

		if pair.Outcome.Reachable {
			result.Latency = pair.Outcome.Latency
		} else {
			result.Message = pair.Outcome.Error
		}

		r.logDevice(pair.Device, result)

		results = append(results, result)
	}

	persistCtx := ctx

	if r.persistTimeout > 0 {
		var cancel context.CancelFunc

		persistCtx, cancel = context.WithTimeout(ctx, r.persistTimeout)
		defer cancel()
	}

	if err := r.store.AppendBatch(persistCtx, results); err != nil {
		report.Err = err
		report.Error = err.Error()

		r.logger.Error().
			Err(err).
			Str("cycle_id", cycleID).
			Int("results", len(results)).
			Msg("Error saving scan results, batch discarded")

		return report, results
	}

	report.Written = len(results)

	r.logger.Info().
		Str("cycle_id", cycleID).
		Int("results", report.Written).
		Msg("Scan completed and saved")

	return report, results
}

func (r *Recorder) logDevice(device models.Device, result *models.ScanResult) {
	if result.Reachable {
		event := r.logger.Info().
			Int64("device_id", device.ID).
			Str("name", device.Name).
			Str("address", device.Address)

		if result.Latency != nil {
			event = event.Dur("latency", *result.Latency)
		}

		event.Msgf("Device %s (%s) is %s", device.Name, device.Address, result.Status())

		return
	}

	r.logger.Warn().
		Int64("device_id", device.ID).
		Str("name", device.Name).
		Str("address", device.Address).
		Str("reason", result.Message).
		Msgf("Device %s (%s) is %s", device.Name, device.Address, result.Status())
}
