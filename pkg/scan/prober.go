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

//go:generate mockgen -destination=mock_prober.go -package=scan github.com/carverauto/devicepulse/pkg/scan Prober

// Package scan implements single-address liveness probes.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

// Prober checks whether one address is reachable. Implementations never
// return errors: every failure is folded into an unreachable outcome, and the
// timeout is enforced by the prober itself.
type Prober interface {
	Probe(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome

func (f ProberFunc) Probe(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome {
	return f(ctx, address, timeout)
}

// NewProber builds the prober selected by cfg.Method.
func NewProber(cfg *models.ProbeConfig, log logger.Logger) (Prober, error) {
	switch cfg.Method {
	case models.ProbeMethodICMP, "":
		return NewICMPProber(cfg.Privileged, log), nil
	case models.ProbeMethodExec:
		return NewExecProber(cfg.PingBinary, log), nil
	case models.ProbeMethodTCP:
		return NewTCPProber(cfg.TCPPort, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
}

// Reachable builds a successful outcome.
func Reachable(address string, latency time.Duration) models.ProbeOutcome {
	return models.ProbeOutcome{
		Address:   address,
		Reachable: true,
		Latency:   &latency,
	}
}

// Unreachable builds a failed outcome carrying err as the diagnostic.
func Unreachable(address string, err error) models.ProbeOutcome {
	outcome := models.ProbeOutcome{Address: address}
	if err != nil {
		outcome.Error = err.Error()
	}

	return outcome
}

// probeError maps a failure to ErrProbeTimeout when the probe's own deadline
// expired, so every prober reports timeouts the same way.
func probeError(probeCtx context.Context, err error) error {
	if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return ErrProbeTimeout
	}

	return err
}

// validateAddress rejects values that can not name a host.
func validateAddress(address string) error {
	if address == "" || strings.HasPrefix(address, "-") || strings.ContainsAny(address, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return nil
}
