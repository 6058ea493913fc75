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

// Package config loads worker configuration from files and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/carverauto/devicepulse/pkg/logger"
)

var (
	errInvalidConfigSource = errors.New("invalid CONFIG_SOURCE value")
	errLoadConfigFailed    = errors.New("failed to load configuration")
	errInvalidConfigPtr    = errors.New("config must be a non-nil pointer")
)

const (
	configSourceFile = "file"
	configSourceEnv  = "env"
)

// ConfigLoader populates dst from some source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configs that can check themselves.
type Validator interface {
	Validate() error
}

// Defaulter is implemented by configs that fill their own zero values.
type Defaulter interface {
	ApplyDefaults()
}

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	envLoader  ConfigLoader
	logger     logger.Logger
}

// NewConfig initializes a new Config instance with the file and environment loaders.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{
		fileLoader: &FileConfigLoader{logger: log},
		envLoader:  NewEnvConfigLoader(log),
		logger:     log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads the file at path (unless CONFIG_SOURCE=env), overlays
// environment variables, applies defaults and validates the result.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	if err := checkPointer(cfg); err != nil {
		return err
	}

	source := strings.ToLower(os.Getenv("CONFIG_SOURCE"))

	switch source {
	case configSourceFile, "":
		if path != "" {
			if err := c.fileLoader.Load(ctx, path, cfg); err != nil {
				return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
			}
		}
	case configSourceEnv:
		c.logger.Debug().Msg("CONFIG_SOURCE=env, skipping configuration file")
	default:
		return fmt.Errorf("%w: %s (expected '%s' or '%s')",
			errInvalidConfigSource, source, configSourceFile, configSourceEnv)
	}

	if err := c.envLoader.Load(ctx, "", cfg); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
	}

	if d, ok := cfg.(Defaulter); ok {
		d.ApplyDefaults()
	}

	return ValidateConfig(cfg)
}

func checkPointer(cfg interface{}) error {
	v := reflect.ValueOf(cfg)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return errInvalidConfigPtr
	}

	return nil
}
