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

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var errUnknownOutput = errors.New("unknown log output")

type Config struct {
	Level      string     `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Debug      bool       `json:"debug" yaml:"debug" env:"DEBUG"`
	Output     string     `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	TimeFormat string     `json:"time_format" yaml:"time_format" env:"LOG_TIME_FORMAT"`
	OTel       OTelConfig `json:"otel" yaml:"otel"`
}

// ResolveLevel returns the effective level. Debug overrides Level.
func (c *Config) ResolveLevel() (zerolog.Level, error) {
	if c.Debug {
		return zerolog.DebugLevel, nil
	}

	if c.Level == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	return level, nil
}

// Writer maps Output onto a stream.
func (c *Config) Writer() (io.Writer, error) {
	switch strings.ToLower(c.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownOutput, c.Output)
	}
}

// New builds a zerolog.Logger from config. When config.OTel is enabled every
// line is also exported over OTLP; call Shutdown before exit to flush it.
func New(config *Config, output io.Writer) (zerolog.Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := config.ResolveLevel()
	if err != nil {
		return zerolog.Nop(), err
	}

	if output == nil {
		output, err = config.Writer()
		if err != nil {
			return zerolog.Nop(), err
		}
	}

	if config.OTel.Enabled {
		otelWriter, err := NewOTelWriter(context.Background(), config.OTel)
		if err != nil {
			return zerolog.Nop(), err
		}

		registerOTelWriter(otelWriter)

		output = zerolog.MultiLevelWriter(output, otelWriter)
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}
