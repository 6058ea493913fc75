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

// CycleStatus summarizes how a scan cycle ended.
type CycleStatus string

const (
	// CycleStatusOK means every mapped outcome was persisted.
	CycleStatusOK CycleStatus = "ok"
	// CycleStatusEmpty means the roster was empty and nothing was probed.
	CycleStatusEmpty CycleStatus = "empty"
	// CycleStatusDegraded means the registry or the store failed.
	CycleStatusDegraded CycleStatus = "degraded"
)

// RecordReport describes one batch hand-off to the result store.
type RecordReport struct {
	Attempted  int       `json:"attempted"`
	Written    int       `json:"written"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	Err        error     `json:"-"`
}

// CycleReport is produced by every scan cycle.
type CycleReport struct {
	CycleID            string       `json:"cycle_id"`
	StartedAt          time.Time    `json:"started_at"`
	FinishedAt         time.Time    `json:"finished_at"`
	Devices            int          `json:"devices"`
	Probed             int          `json:"probed"`
	Reachable          int          `json:"reachable"`
	Unreachable        int          `json:"unreachable"`
	Dropped            int          `json:"dropped"`
	DuplicateAddresses []string     `json:"duplicate_addresses,omitempty"`
	Status             CycleStatus  `json:"status"`
	Record             RecordReport `json:"record"`
	Error              string       `json:"error,omitempty"`
}

// Duration returns the wall time spent in the cycle.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CycleEvent is what gets published once a cycle is finished.
type CycleEvent struct {
	Report  *CycleReport  `json:"report"`
	Results []*ScanResult `json:"results,omitempty"`
}

// WorkerStatus is exposed on the status endpoint.
type WorkerStatus struct {
	Running        bool         `json:"running"`
	CyclesRun      int64        `json:"cycles_run"`
	DegradedCycles int64        `json:"degraded_cycles"`
	LastCycle      *CycleReport `json:"last_cycle,omitempty"`
}
