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
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carverauto/devicepulse/pkg/models"
)

// bufferLogger records JSON log lines so tests can check levels and messages.
type bufferLogger struct {
	zerolog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func newBufferLogger() *bufferLogger {
	l := &bufferLogger{}
	l.Logger = zerolog.New(lockedWriter{l}).Level(zerolog.TraceLevel)

	return l
}

type lockedWriter struct{ l *bufferLogger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()

	return w.l.buf.Write(p)
}

func (l *bufferLogger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

func (l *bufferLogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	return l.Logger.With().Fields(fields).Logger()
}

func (l *bufferLogger) SetLevel(level zerolog.Level) { l.Logger = l.Logger.Level(level) }

func (*bufferLogger) SetDebug(bool) {}

// entries returns every logged line decoded as a map.
func (l *bufferLogger) entries() []map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []map[string]interface{}

	for _, line := range strings.Split(strings.TrimSpace(l.buf.String()), "\n") {
		entry := make(map[string]interface{})
		if json.Unmarshal([]byte(line), &entry) == nil {
			out = append(out, entry)
		}
	}

	return out
}

// fakeClock hands out a fixed time and fires every wait immediately.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.waits = append(f.waits, d)

	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)

	return ch
}

func (f *fakeClock) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]time.Duration(nil), f.waits...)
}

// resultCapture records AppendBatch calls made through a mock store.
type resultCapture struct {
	mu      sync.Mutex
	batches [][]*models.ScanResult
	err     error
}

func (c *resultCapture) append(_ context.Context, results []*models.ScanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batches = append(c.batches, results)

	return c.err
}

func (c *resultCapture) last() []*models.ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.batches) == 0 {
		return nil
	}

	out := append([]*models.ScanResult(nil), c.batches[len(c.batches)-1]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })

	return out
}

type deviceState struct {
	ID        int64
	Reachable bool
}

func states(results []*models.ScanResult) []deviceState {
	out := make([]deviceState, 0, len(results))
	for _, r := range results {
		out = append(out, deviceState{ID: r.DeviceID, Reachable: r.Reachable})
	}

	return out
}
