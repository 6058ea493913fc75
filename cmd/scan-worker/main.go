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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/carverauto/devicepulse/pkg/config"
	"github.com/carverauto/devicepulse/pkg/lifecycle"
	"github.com/carverauto/devicepulse/pkg/models"
	"github.com/carverauto/devicepulse/pkg/version"
	"github.com/carverauto/devicepulse/pkg/worker"
)

var errFailedToLoadConfig = errors.New("failed to load config")

const loggerFlushTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/devicepulse/scan-worker.yaml", "Path to scan worker config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment overlay")
	flag.Parse()

	ctx := context.Background()

	if err := config.LoadDotEnv(nil, *envFile); err != nil {
		return err
	}

	var cfg models.WorkerConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	workerLogger, err := lifecycle.CreateComponentLogger("scan-worker", &cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), loggerFlushTimeout)
		defer cancel()

		if err := lifecycle.ShutdownLogger(flushCtx); err != nil {
			log.Printf("Failed to flush logs: %v", err)
		}
	}()

	workerLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting scan worker")

	w, err := worker.New(ctx, &cfg, workerLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		ServiceName: "scan-worker",
		Service:     w,
		Logger:      workerLogger,
	})
}
