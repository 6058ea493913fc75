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

package registry

import (
	"context"
	"sync"

	"github.com/carverauto/devicepulse/pkg/models"
)

// Static serves a roster held in memory, usually taken from configuration.
type Static struct {
	mu      sync.RWMutex
	devices []models.Device
}

// NewStatic creates a registry over a copy of devices.
func NewStatic(devices []models.Device) *Static {
	s := &Static{}
	s.Replace(devices)

	return s
}

// ListDevices implements Registry. Callers get their own copy.
func (s *Static) ListDevices(_ context.Context) ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, len(s.devices))
	copy(out, s.devices)

	return out, nil
}

// Replace swaps the roster. Snapshots already handed out are unaffected.
func (s *Static) Replace(devices []models.Device) {
	next := make([]models.Device, len(devices))
	copy(next, devices)

	s.mu.Lock()
	s.devices = next
	s.mu.Unlock()
}
