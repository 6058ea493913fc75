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
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
	"github.com/carverauto/devicepulse/pkg/registry"
	"github.com/carverauto/devicepulse/pkg/scan"
)

var (
	errRegistryDown = errors.New("registry down")
	errStoreDown    = errors.New("store down")
	errBrokerDown   = errors.New("broker down")
)

func testConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ProbeTimeout: 20 * time.Millisecond,
		ProbeGrace:   time.Second,
	}
}

func newTestCoordinator(
	cfg CoordinatorConfig,
	reg registry.Registry,
	prober scan.Prober,
	store ResultStore,
	opts ...CoordinatorOption,
) *Coordinator {
	log := logger.NewTestLogger()
	recorder := NewRecorder(store, time.Second, log).WithClock(newFakeClock())

	return NewCoordinator(cfg, reg, prober, recorder, log, opts...)
}

// timeoutProber answers for the given addresses and lets every other probe
// run into its own timeout.
func timeoutProber(reachable ...string) scan.Prober {
	up := make(map[string]bool, len(reachable))
	for _, a := range reachable {
		up[a] = true
	}

	return scan.ProberFunc(func(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome {
		if up[address] {
			return scan.Reachable(address, 3*time.Millisecond)
		}

		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		}

		return scan.Unreachable(address, scan.ErrProbeTimeout)
	})
}

func TestRunCycle_OneReachableOneTimedOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)
	capture := &resultCapture{}

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{
		{ID: 1, Name: "A", Address: "10.0.0.1"},
		{ID: 2, Name: "B", Address: "10.0.0.2"},
	}, nil)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(2)).DoAndReturn(capture.append).Times(1)

	report := newTestCoordinator(testConfig(), reg, timeoutProber("10.0.0.1"), store).RunCycle(context.Background())

	assert.Equal(t, []deviceState{{ID: 1, Reachable: true}, {ID: 2, Reachable: false}}, states(capture.last()))

	results := capture.last()
	require.NotNil(t, results[0].Latency)
	assert.Nil(t, results[1].Latency)
	assert.Equal(t, scan.ErrProbeTimeout.Error(), results[1].Message)
	assert.Equal(t, results[0].ObservedAt, results[1].ObservedAt, "one observation time per batch")
	assert.Equal(t, report.CycleID, results[0].CycleID)

	assert.Equal(t, models.CycleStatusOK, report.Status)
	assert.Equal(t, 2, report.Devices)
	assert.Equal(t, 2, report.Probed)
	assert.Equal(t, 1, report.Reachable)
	assert.Equal(t, 1, report.Unreachable)
	assert.Equal(t, 2, report.Record.Written)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRunCycle_PassesProbeTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	prober := scan.NewMockProber(ctrl)
	store := NewMockResultStore(ctrl)

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{{ID: 9, Name: "nas", Address: "192.168.1.9"}}, nil)
	prober.EXPECT().
		Probe(gomock.Any(), "192.168.1.9", 20*time.Millisecond).
		Return(scan.Reachable("192.168.1.9", time.Millisecond)).
		Times(1)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(1)).Return(nil)

	report := newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	assert.Equal(t, models.CycleStatusOK, report.Status)
}

func TestRunCycle_EmptyRosterTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	prober := scan.NewMockProber(ctrl)
	store := NewMockResultStore(ctrl)

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{}, nil)
	// no Probe or AppendBatch expectations: any call fails the test

	report := newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	assert.Equal(t, models.CycleStatusEmpty, report.Status)
	assert.Zero(t, report.Probed)
	assert.Empty(t, report.Error)
}

func TestRunCycle_EmptyRosterLogsWarning(t *testing.T) {
	log := newBufferLogger()
	recorder := NewRecorder(NewInMemoryStore(10, log), time.Second, log).WithClock(newFakeClock())
	coordinator := NewCoordinator(testConfig(), registry.NewStatic(nil), timeoutProber(), recorder, log,
		WithCycleIDs(func() string { return "cycle-empty" }))

	report := coordinator.RunCycle(context.Background())
	require.Equal(t, models.CycleStatusEmpty, report.Status)

	var found map[string]interface{}

	for _, entry := range log.entries() {
		if msg, _ := entry["message"].(string); strings.HasPrefix(msg, "No devices found") {
			found = entry
		}
	}

	require.NotNil(t, found, "empty roster must be logged")
	assert.Equal(t, "warn", found["level"])
	assert.Equal(t, "cycle-empty", found["cycle_id"])
}

func TestRunCycle_RegistryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	prober := scan.NewMockProber(ctrl)
	store := NewMockResultStore(ctrl)

	reg.EXPECT().ListDevices(gomock.Any()).Return(nil, errRegistryDown)

	report := newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	assert.Equal(t, models.CycleStatusDegraded, report.Status)
	assert.Contains(t, report.Error, errRegistryDown.Error())
}

// Two devices sharing an address are both probed, and both outcomes land on
// whichever device the roster lists last for that address.
func TestRunCycle_DuplicateAddressLastDeviceWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)
	capture := &resultCapture{}

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{
		{ID: 5, Name: "old-printer", Address: "10.0.0.5"},
		{ID: 6, Name: "new-printer", Address: "10.0.0.5"},
		{ID: 7, Name: "switch", Address: "10.0.0.7"},
	}, nil)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Any()).DoAndReturn(capture.append)

	var probes sync.Map

	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		n, _ := probes.LoadOrStore(address, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)

		return scan.Reachable(address, time.Millisecond)
	})

	report := newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	count, _ := probes.Load("10.0.0.5")
	assert.Equal(t, int32(2), count.(*atomic.Int32).Load(), "both devices are probed")

	assert.Equal(t, []deviceState{
		{ID: 6, Reachable: true},
		{ID: 6, Reachable: true},
		{ID: 7, Reachable: true},
	}, states(capture.last()))
	assert.Equal(t, []string{"10.0.0.5"}, report.DuplicateAddresses)
	assert.Equal(t, models.CycleStatusOK, report.Status)
}

func TestRunCycle_UnmappedOutcomeIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)
	capture := &resultCapture{}

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{
		{ID: 1, Name: "A", Address: "10.0.0.1"},
		{ID: 2, Name: "B", Address: "10.0.0.2"},
	}, nil)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(1)).DoAndReturn(capture.append)

	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		if address == "10.0.0.2" {
			// a prober that rewrites the address breaks the mapping
			return scan.Reachable("10.0.0.99", time.Millisecond)
		}

		return scan.Reachable(address, time.Millisecond)
	})

	report := newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 2, report.Probed)
	assert.Equal(t, []deviceState{{ID: 1, Reachable: true}}, states(capture.last()))
	assert.Equal(t, models.CycleStatusOK, report.Status)
}

func TestRunCycle_ProberIgnoringDeadlineIsCutOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)
	capture := &resultCapture{}

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{
		{ID: 1, Name: "A", Address: "10.0.0.1"},
		{ID: 2, Name: "stuck", Address: "10.0.0.2"},
	}, nil)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(2)).DoAndReturn(capture.append)

	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		if address == "10.0.0.2" {
			<-release
		}

		return scan.Reachable(address, time.Millisecond)
	})

	cfg := CoordinatorConfig{ProbeTimeout: 10 * time.Millisecond, ProbeGrace: 10 * time.Millisecond}
	start := time.Now()

	report := newTestCoordinator(cfg, reg, prober, store).RunCycle(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []deviceState{{ID: 1, Reachable: true}, {ID: 2, Reachable: false}}, states(capture.last()))
	assert.Equal(t, errProbeDeadline.Error(), capture.last()[1].Message)
	assert.Equal(t, models.CycleStatusOK, report.Status)
}

func TestRunCycle_PanickingProberOnlyAffectsItsDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)
	capture := &resultCapture{}

	reg.EXPECT().ListDevices(gomock.Any()).Return([]models.Device{
		{ID: 1, Name: "A", Address: "10.0.0.1"},
		{ID: 2, Name: "B", Address: "10.0.0.2"},
	}, nil)
	store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(2)).DoAndReturn(capture.append)

	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		if address == "10.0.0.2" {
			panic("socket exploded")
		}

		return scan.Reachable(address, time.Millisecond)
	})

	newTestCoordinator(testConfig(), reg, prober, store).RunCycle(context.Background())

	results := capture.last()
	assert.Equal(t, []deviceState{{ID: 1, Reachable: true}, {ID: 2, Reachable: false}}, states(results))
	assert.Contains(t, results[1].Message, "socket exploded")
}

// A failed write leaves the cycle degraded, and the next cycle persists normally.
func TestRunCycle_StoreFailureThenRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reg := registry.NewMockRegistry(ctrl)
	store := NewMockResultStore(ctrl)

	devices := []models.Device{
		{ID: 1, Name: "A", Address: "10.0.0.1"},
		{ID: 2, Name: "B", Address: "10.0.0.2"},
	}

	reg.EXPECT().ListDevices(gomock.Any()).Return(devices, nil).Times(2)
	gomock.InOrder(
		store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(2)).Return(errStoreDown),
		store.EXPECT().AppendBatch(gomock.Any(), gomock.Len(2)).Return(nil),
	)

	coordinator := newTestCoordinator(testConfig(), reg, timeoutProber("10.0.0.1", "10.0.0.2"), store)

	first := coordinator.RunCycle(context.Background())
	require.Equal(t, models.CycleStatusDegraded, first.Status)
	require.ErrorIs(t, first.Record.Err, errStoreDown)
	assert.Zero(t, first.Record.Written)
	assert.Contains(t, first.Error, errStoreDown.Error())

	second := coordinator.RunCycle(context.Background())
	assert.Equal(t, models.CycleStatusOK, second.Status)
	assert.Equal(t, 2, second.Record.Written)
	assert.NotEqual(t, first.CycleID, second.CycleID)
}

func TestRunCycle_ProbesRunConcurrently(t *testing.T) {
	const n = 20

	devices := make([]models.Device, 0, n)
	for i := 1; i <= n; i++ {
		devices = append(devices, models.Device{ID: int64(i), Name: fmt.Sprintf("d%d", i), Address: fmt.Sprintf("10.1.0.%d", i)})
	}

	var started atomic.Int32

	// every probe waits until all of them are in flight
	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		started.Add(1)

		deadline := time.Now().Add(2 * time.Second)
		for started.Load() < n {
			if time.Now().After(deadline) {
				return scan.Unreachable(address, scan.ErrProbeTimeout)
			}

			time.Sleep(time.Millisecond)
		}

		return scan.Reachable(address, time.Millisecond)
	})

	store := NewInMemoryStore(100, logger.NewTestLogger())
	cfg := CoordinatorConfig{ProbeTimeout: 5 * time.Second, ProbeGrace: time.Second}

	report := newTestCoordinator(cfg, registry.NewStatic(devices), prober, store).RunCycle(context.Background())

	assert.Equal(t, n, report.Reachable)
	assert.Equal(t, n, store.Len())
	assert.Len(t, store.ResultsForCycle(report.CycleID), n)
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	const n = 12

	devices := make([]models.Device, 0, n)
	for i := 1; i <= n; i++ {
		devices = append(devices, models.Device{ID: int64(i), Address: fmt.Sprintf("10.2.0.%d", i)})
	}

	var inflight, peak, calls atomic.Int32

	prober := scan.ProberFunc(func(_ context.Context, address string, _ time.Duration) models.ProbeOutcome {
		calls.Add(1)

		cur := inflight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)

		return scan.Reachable(address, time.Millisecond)
	})

	cfg := testConfig()
	cfg.MaxConcurrency = 3
	cfg.ProbeRateLimit = 1000

	store := NewInMemoryStore(100, logger.NewTestLogger())

	report := newTestCoordinator(cfg, registry.NewStatic(devices), prober, store).RunCycle(context.Background())

	assert.Equal(t, int32(n), calls.Load(), "every device is still probed")
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, n, report.Record.Written)
}

func TestRunCycle_Publishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := NewInMemoryStore(10, logger.NewTestLogger())
	publisher := NewMockPublisher(ctrl)
	reg := registry.NewStatic([]models.Device{{ID: 1, Name: "A", Address: "10.0.0.1"}})

	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *models.CycleEvent) error {
			assert.Equal(t, models.CycleStatusOK, event.Report.Status)
			require.Len(t, event.Results, 1)
			assert.Equal(t, int64(1), event.Results[0].DeviceID)

			return errBrokerDown
		})

	report := newTestCoordinator(testConfig(), reg, timeoutProber("10.0.0.1"), store,
		WithPublisher(publisher), WithCycleIDs(func() string { return "cycle-1" })).
		RunCycle(context.Background())

	assert.Equal(t, "cycle-1", report.CycleID)
	assert.Equal(t, models.CycleStatusOK, report.Status, "publish failures do not degrade the cycle")
}

func TestBuildAddressIndex(t *testing.T) {
	index, duplicates := buildAddressIndex([]models.Device{
		{ID: 1, Address: "10.0.0.1"},
		{ID: 2, Address: "10.0.0.5"},
		{ID: 3, Address: "10.0.0.5"},
		{ID: 4, Address: "10.0.0.5"},
	})

	assert.Len(t, index, 2)
	assert.Equal(t, int64(4), index["10.0.0.5"].ID)
	assert.Equal(t, []string{"10.0.0.5"}, duplicates)
}

func TestNewCoordinatorConfig(t *testing.T) {
	cfg := &models.WorkerConfig{MaxConcurrency: 8, ProbeRateLimit: 50}
	cfg.ApplyDefaults()

	cc := NewCoordinatorConfig(cfg)

	assert.Equal(t, models.DefaultProbeTimeout, cc.ProbeTimeout)
	assert.Equal(t, models.DefaultProbeGrace, cc.ProbeGrace)
	assert.Equal(t, 8, cc.MaxConcurrency)
	assert.InDelta(t, 50.0, cc.ProbeRateLimit, 0.001)
}
