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

import "errors"

var (
	errInvalidDuration = errors.New("invalid duration")

	ErrInvalidInterval        = errors.New("interval must be positive")
	ErrInvalidProbeTimeout    = errors.New("probe timeout must be positive")
	ErrUnknownProbeMethod     = errors.New("unknown probe method")
	ErrInvalidTCPPort         = errors.New("tcp port out of range")
	ErrInvalidConcurrency     = errors.New("max concurrency must not be negative")
	ErrInvalidRateLimit       = errors.New("probe rate limit must not be negative")
	ErrUnknownRegistrySource  = errors.New("unknown registry source")
	ErrUnknownStoreKind       = errors.New("unknown store kind")
	ErrDatabaseRequired       = errors.New("database host and name are required")
	ErrUnknownPublishKind     = errors.New("unknown publish kind")
	ErrPublishEndpoint        = errors.New("publish endpoint is required")
	ErrInvalidDevice          = errors.New("invalid static device")
	ErrMemoryCapacityTooSmall = errors.New("memory store capacity is smaller than the static roster")
)
