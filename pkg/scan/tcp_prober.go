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

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

// TCPProber treats a completed TCP handshake on a fixed port as liveness.
type TCPProber struct {
	port   int
	logger logger.Logger
}

// NewTCPProber creates a TCP connect prober.
func NewTCPProber(port int, log logger.Logger) *TCPProber {
	if port <= 0 {
		port = models.DefaultTCPPort
	}

	return &TCPProber{port: port, logger: log}
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome {
	if err := validateAddress(address); err != nil {
		return Unreachable(address, err)
	}

	// Create per-probe timeout context that respects both parent context and timeout
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(address, strconv.Itoa(p.port)))
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			err = fmt.Errorf("%w: port %d", errConnectionRefused, p.port)
		}

		return Unreachable(address, probeError(probeCtx, err))
	}

	latency := time.Since(start)

	if err := conn.Close(); err != nil {
		p.logger.Debug().Err(err).Str("address", address).Msg("failed to close connection")
	}

	return Reachable(address, latency)
}
