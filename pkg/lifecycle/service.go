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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errServiceRequired = errors.New("service is required")

// Service is a long-running component. Start blocks until ctx is cancelled
// or the service fails; Stop releases resources after Start has returned.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceOptions configures RunService.
type ServiceOptions struct {
	ServiceName     string
	Service         Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
	// Signals overrides SIGINT/SIGTERM delivery. Used by tests.
	Signals <-chan os.Signal
}

// RunService starts the service and blocks until it exits on its own or a
// termination signal arrives. On a signal the service context is cancelled and
// Start is allowed to return before Stop is called.
func RunService(ctx context.Context, opts *ServiceOptions) error {
	if opts == nil || opts.Service == nil {
		return errServiceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	sigCh := opts.Signals
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)

		sigCh = ch
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(runCtx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var runErr error

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received signal, finishing current work before shutdown")
		cancel()

		runErr = <-errCh
	case <-ctx.Done():
		runErr = <-errCh
	case runErr = <-errCh:
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error during service shutdown")

		if runErr == nil {
			runErr = fmt.Errorf("stop %s: %w", opts.ServiceName, err)
		}
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return runErr
}
