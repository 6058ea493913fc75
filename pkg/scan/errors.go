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

package scan

import "errors"

var (
	ErrProbeTimeout      = errors.New("probe timed out")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrResolveFailed     = errors.New("address resolution failed")
	ErrNoEchoReply       = errors.New("no echo reply")
	ErrICMPListen        = errors.New("failed to open ICMP socket")
	ErrPingFailed        = errors.New("ping command failed")
	ErrUnknownMethod     = errors.New("unknown probe method")
	errConnectionRefused = errors.New("connection refused")
)
