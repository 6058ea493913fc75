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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const configJSONEnv = "CONFIG_JSON"

// EnvConfigLoader overlays environment variables onto a config using the
// struct's env tags. Variables that are unset leave the field untouched.
type EnvConfigLoader struct {
	logger logger.Logger
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(log logger.Logger) *EnvConfigLoader {
	return &EnvConfigLoader{logger: log}
}

// Load implements ConfigLoader by reading from environment variables.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	// a complete JSON document in CONFIG_JSON is applied first
	if jsonConfig := os.Getenv(configJSONEnv); jsonConfig != "" {
		if err := json.Unmarshal([]byte(jsonConfig), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", configJSONEnv, err)
		}

		e.logger.Info().Msg("Loaded configuration from CONFIG_JSON environment variable")
	}

	if err := cleanenv.ReadEnv(dst); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(log logger.Logger, paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}

		if log != nil {
			log.Debug().Str("path", path).Msg("Loaded environment file")
		}
	}

	return nil
}
