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

package models

import "time"

// ProbeOutcome is the result of a single liveness probe. It lives for one
// cycle only and is never persisted directly.
type ProbeOutcome struct {
	Address   string
	Reachable bool
	// Latency is set only when Reachable is true.
	Latency *time.Duration
	// Error carries the diagnostic of a failed probe.
	Error string
}

// ScanResult is one persisted liveness observation. Rows are append-only.
type ScanResult struct {
	DeviceID   int64          `json:"device_id"`
	CycleID    string         `json:"cycle_id"`
	Reachable  bool           `json:"reachable"`
	Latency    *time.Duration `json:"latency,omitempty"`
	Message    string         `json:"message,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// LatencyMillis returns the latency rounded to whole milliseconds, or nil.
func (r *ScanResult) LatencyMillis() *int64 {
	if r.Latency == nil {
		return nil
	}

	ms := r.Latency.Milliseconds()

	return &ms
}

// Status returns the console label used for the result.
func (r *ScanResult) Status() string {
	if r.Reachable {
		return "ONLINE"
	}

	return "OFFLINE"
}
