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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
	"github.com/carverauto/devicepulse/pkg/registry"
	"github.com/carverauto/devicepulse/pkg/scan"
)

// CoordinatorConfig tunes a scan cycle.
type CoordinatorConfig struct {
	// ProbeTimeout is handed to the prober for every probe.
	ProbeTimeout time.Duration
	// ProbeGrace is how long past ProbeTimeout the coordinator waits for a
	// prober that ignores its own deadline.
	ProbeGrace time.Duration
	// MaxConcurrency caps in-flight probes. Zero means one goroutine per device.
	MaxConcurrency int
	// ProbeRateLimit paces probe launches per second. Zero disables pacing.
	ProbeRateLimit float64
}

// NewCoordinatorConfig extracts the cycle settings from the worker config.
func NewCoordinatorConfig(cfg *models.WorkerConfig) CoordinatorConfig {
	return CoordinatorConfig{
		ProbeTimeout:   cfg.Probe.Timeout.Std(),
		ProbeGrace:     cfg.Probe.Grace.Std(),
		MaxConcurrency: cfg.MaxConcurrency,
		ProbeRateLimit: cfg.ProbeRateLimit,
	}
}

// Coordinator runs one scan cycle at a time: snapshot the roster, probe every
// device concurrently, map outcomes back to devices and hand them to the
// Recorder as a single batch.
type Coordinator struct {
	config    CoordinatorConfig
	registry  registry.Registry
	prober    scan.Prober
	recorder  *Recorder
	publisher Publisher
	limiter   *rate.Limiter
	clock     Clock
	newID     func() string
	logger    logger.Logger
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPublisher announces every finished cycle through p.
func WithPublisher(p Publisher) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithCoordinatorClock replaces the wall clock used for report timestamps.
func WithCoordinatorClock(clock Clock) CoordinatorOption {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithCycleIDs replaces the cycle identifier generator.
func WithCycleIDs(newID func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

// NewCoordinator wires a coordinator.
func NewCoordinator(
	config CoordinatorConfig,
	reg registry.Registry,
	prober scan.Prober,
	recorder *Recorder,
	log logger.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = models.DefaultProbeTimeout
	}

	if config.ProbeGrace <= 0 {
		config.ProbeGrace = models.DefaultProbeGrace
	}

	c := &Coordinator{
		config:   config,
		registry: reg,
		prober:   prober,
		recorder: recorder,
		clock:    realClock{},
		newID:    uuid.NewString,
		logger:   log,
	}

	if config.ProbeRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.ProbeRateLimit), 1)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RunCycle executes a single scan cycle. It never returns an error: registry
// and store failures are reported through the returned report.
func (c *Coordinator) RunCycle(ctx context.Context) *models.CycleReport {
	report := &models.CycleReport{
		CycleID:   c.newID(),
		StartedAt: c.clock.Now(),
	}

	c.logger.Info().Str("cycle_id", report.CycleID).Msg("Starting network scan")

	devices, err := c.registry.ListDevices(ctx)
	if err != nil {
		report.Status = models.CycleStatusDegraded
		report.Error = err.Error()

		c.logger.Error().Err(err).Str("cycle_id", report.CycleID).Msg("Failed to load device roster")

		return c.finish(ctx, report, nil)
	}

	report.Devices = len(devices)

	if len(devices) == 0 {
		report.Status = models.CycleStatusEmpty

		c.logger.Warn().Str("cycle_id", report.CycleID).Msg("No devices found in registry, waiting for devices")

		return c.finish(ctx, report, nil)
	}

	index, duplicates := buildAddressIndex(devices)
	if len(duplicates) > 0 {
		report.DuplicateAddresses = duplicates

		c.logger.Warn().
			Str("cycle_id", report.CycleID).
			Strs("addresses", duplicates).
			Msg("Duplicate device addresses in roster, outcomes go to the last device listed")
	}

	outcomes := c.probeAll(ctx, devices)
	report.Probed = len(outcomes)

	pairs := make([]Pair, 0, len(outcomes))

	for _, outcome := range outcomes {
		device, ok := index[outcome.Address]
		if !ok {
			report.Dropped++

			c.logger.Warn().
				Str("cycle_id", report.CycleID).
				Str("address", outcome.Address).
				Msg("Probe outcome does not match any device, dropping")

			continue
		}

		if outcome.Reachable {
			report.Reachable++
		} else {
			report.Unreachable++
		}

		pairs = append(pairs, Pair{Device: device, Outcome: outcome})
	}

	record, results := c.recorder.Record(ctx, report.CycleID, pairs)
	report.Record = record

	if record.Err != nil {
		report.Status = models.CycleStatusDegraded
		report.Error = record.Error
	} else {
		report.Status = models.CycleStatusOK
	}

	return c.finish(ctx, report, results)
}

func (c *Coordinator) finish(ctx context.Context, report *models.CycleReport, results []*models.ScanResult) *models.CycleReport {
	report.FinishedAt = c.clock.Now()

	c.logger.Info().
		Str("cycle_id", report.CycleID).
		Str("status", string(report.Status)).
		Int("devices", report.Devices).
		Int("reachable", report.Reachable).
		Int("unreachable", report.Unreachable).
		Int("dropped", report.Dropped).
		Dur("duration", report.Duration()).
		Msg("Scan cycle finished")

	if c.publisher == nil {
		return report
	}

	if err := c.publisher.Publish(ctx, &models.CycleEvent{Report: report, Results: results}); err != nil {
		c.logger.Warn().Err(err).Str("cycle_id", report.CycleID).Msg("Failed to publish scan cycle")
	}

	return report
}

// probeAll launches exactly one probe per device and waits for all of them.
func (c *Coordinator) probeAll(ctx context.Context, devices []models.Device) []models.ProbeOutcome {
	p := pool.NewWithResults[models.ProbeOutcome]()
	if c.config.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(c.config.MaxConcurrency)
	}

	for _, device := range devices {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				// pacing is best effort; the device is still probed
				c.logger.Debug().Err(err).Msg("probe pacing interrupted")
			}
		}

		address := device.Address

		p.Go(func() models.ProbeOutcome {
			return c.probeOne(ctx, address)
		})
	}

	return p.Wait()
}

// probeOne bounds a single probe by timeout plus grace and turns a panic in
// the prober into an unreachable outcome for that device only.
func (c *Coordinator) probeOne(ctx context.Context, address string) models.ProbeOutcome {
	done := make(chan models.ProbeOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Str("address", address).Interface("panic", r).Msg("Prober panicked")

				done <- scan.Unreachable(address, fmt.Errorf("%w: %v", errProberPanic, r))
			}
		}()

		done <- c.prober.Probe(ctx, address, c.config.ProbeTimeout)
	}()

	timer := time.NewTimer(c.config.ProbeTimeout + c.config.ProbeGrace)
	defer timer.Stop()

	select {
	case outcome := <-done:
		return outcome
	case <-timer.C:
		c.logger.Warn().Str("address", address).Msg("Prober ignored its deadline")

		return scan.Unreachable(address, errProbeDeadline)
	}
}

// buildAddressIndex maps each address to the last device that carries it and
// reports every address that appeared more than once.
func buildAddressIndex(devices []models.Device) (map[string]models.Device, []string) {
	index := make(map[string]models.Device, len(devices))

	var (
		duplicates []string
		seen       = make(map[string]bool)
	)

	for _, device := range devices {
		if _, ok := index[device.Address]; ok && !seen[device.Address] {
			seen[device.Address] = true
			duplicates = append(duplicates, device.Address)
		}

		index[device.Address] = device
	}

	return index, duplicates
}
