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
	"sync"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

// InMemoryStore implements ResultStore for deployments without a database and
// for tests. It keeps at most capacity results and evicts whole cycles, oldest
// first, so a stored cycle always has every one of its results.
type InMemoryStore struct {
	mu       sync.RWMutex
	results  []*models.ScanResult
	capacity int
	logger   logger.Logger
}

// NewInMemoryStore creates a bounded in-memory result store.
func NewInMemoryStore(capacity int, log logger.Logger) *InMemoryStore {
	if capacity <= 0 {
		capacity = models.DefaultMemoryCapacity
	}

	return &InMemoryStore{
		results:  make([]*models.ScanResult, 0, min(capacity, 1024)),
		capacity: capacity,
		logger:   log,
	}
}

// AppendBatch validates the whole batch before storing any of it. A batch
// larger than the store's capacity is rejected with ErrBatchTooLarge.
func (s *InMemoryStore) AppendBatch(ctx context.Context, results []*models.ScanResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(results) > s.capacity {
		return fmt.Errorf("%w: %d results, capacity %d", ErrBatchTooLarge, len(results), s.capacity)
	}

	batch := make([]*models.ScanResult, 0, len(results))

	for i, r := range results {
		if r == nil || r.DeviceID <= 0 {
			return fmt.Errorf("%w: entry %d", ErrInvalidResult, i)
		}

		stored := *r
		batch = append(batch, &stored)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evictedCycles, evictedResults := 0, 0

	for len(s.results) > 0 && len(s.results)+len(batch) > s.capacity {
		evictedResults += s.evictCycle(s.results[0].CycleID)
		evictedCycles++
	}

	if evictedCycles > 0 {
		s.logger.Debug().
			Int("evicted_cycles", evictedCycles).
			Int("evicted_results", evictedResults).
			Msg("in-memory store at capacity, evicted oldest cycles")
	}

	s.results = append(s.results, batch...)

	return nil
}

// evictCycle drops every result of cycleID and returns how many were removed.
// Callers hold s.mu.
func (s *InMemoryStore) evictCycle(cycleID string) int {
	kept := make([]*models.ScanResult, 0, len(s.results))

	for _, r := range s.results {
		if r.CycleID != cycleID {
			kept = append(kept, r)
		}
	}

	removed := len(s.results) - len(kept)
	s.results = kept

	return removed
}

// Results returns a copy of everything stored, oldest first.
func (s *InMemoryStore) Results() []*models.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ScanResult, len(s.results))
	copy(out, s.results)

	return out
}

// ResultsForCycle returns the results written by one cycle.
func (s *InMemoryStore) ResultsForCycle(cycleID string) []*models.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ScanResult

	for _, r := range s.results {
		if r.CycleID == cycleID {
			out = append(out, r)
		}
	}

	return out
}

// Len returns the number of stored results.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results)
}
