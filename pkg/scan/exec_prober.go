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
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

const defaultPingBinary = "ping"

var rttPattern = regexp.MustCompile(`time[=<]\s*([0-9]+(?:\.[0-9]+)?)\s*ms`)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecProber probes by running the system ping binary for a single echo.
// It needs no socket privileges of its own.
type ExecProber struct {
	binary string
	goos   string
	run    commandRunner
	logger logger.Logger
}

// NewExecProber creates a prober that shells out to ping. An empty binary
// means "ping" from PATH.
func NewExecProber(binary string, log logger.Logger) *ExecProber {
	if binary == "" {
		binary = defaultPingBinary
	}

	return &ExecProber{
		binary: binary,
		goos:   runtime.GOOS,
		run:    execCommand,
		logger: log,
	}
}

// Probe implements Prober. Exit status zero means reachable.
func (p *ExecProber) Probe(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome {
	if err := validateAddress(address); err != nil {
		return Unreachable(address, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	out, err := p.run(probeCtx, p.binary, pingArgs(p.goos, address, timeout)...)
	if err != nil {
		p.logger.Debug().Str("address", address).Err(err).Msg("ping command failed")

		return Unreachable(address, probeError(probeCtx, fmt.Errorf("%w: %w", ErrPingFailed, err)))
	}

	latency, ok := parseRTT(out)
	if !ok {
		latency = time.Since(start)
	}

	return Reachable(address, latency)
}

// pingArgs builds a one-echo ping invocation for the target OS.
func pingArgs(goos, address string, timeout time.Duration) []string {
	seconds := strconv.Itoa(int(math.Max(1, math.Ceil(timeout.Seconds()))))

	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), address}
	case "darwin", "freebsd", "netbsd", "openbsd":
		return []string{"-n", "-c", "1", "-t", seconds, address}
	default:
		return []string{"-n", "-c", "1", "-W", seconds, address}
	}
}

// parseRTT extracts the round trip time from ping output.
func parseRTT(out []byte) (time.Duration, bool) {
	m := rttPattern.FindSubmatch(bytes.ToLower(out))
	if m == nil {
		return 0, false
	}

	ms, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(math.Round(ms * float64(time.Millisecond))), true
}
