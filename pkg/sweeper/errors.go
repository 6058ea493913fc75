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

import "errors"

var (
	errProbeDeadline = errors.New("probe deadline exceeded")
	errProberPanic   = errors.New("prober panicked")

	// ErrInvalidResult is returned by InMemoryStore for nil or unattributed results.
	ErrInvalidResult = errors.New("invalid scan result")

	// ErrBatchTooLarge is returned by InMemoryStore for a batch that exceeds its capacity.
	ErrBatchTooLarge = errors.New("batch exceeds store capacity")
)
