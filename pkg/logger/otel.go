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

package logger

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"google.golang.org/grpc/credentials"

	"github.com/carverauto/devicepulse/pkg/version"
)

var (
	ErrOTelLoggingDisabled  = errors.New("OTel logging is disabled")
	ErrOTelEndpointRequired = errors.New("OTel endpoint is required when enabled")
	errFailedToParseCACert  = errors.New("failed to parse CA certificate")
)

const (
	defaultOTelServiceName  = "devicepulse-scan-worker"
	defaultOTelBatchTimeout = 5 * time.Second
	defaultOTelScope        = "devicepulse"
	maxAttributeValueLength = 4096
)

// OTelConfig enables shipping every log line to an OTLP/gRPC collector in
// addition to the regular output. It is off unless Enabled is set.
// BatchTimeout is a duration string such as "5s".
type OTelConfig struct {
	Enabled      bool              `json:"enabled" yaml:"enabled" env:"OTEL_LOGS_ENABLED"`
	Endpoint     string            `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	Headers      map[string]string `json:"headers" yaml:"headers"`
	ServiceName  string            `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	BatchTimeout string            `json:"batch_timeout" yaml:"batch_timeout" env:"OTEL_EXPORTER_OTLP_LOGS_TIMEOUT"`
	Insecure     bool              `json:"insecure" yaml:"insecure" env:"OTEL_EXPORTER_OTLP_LOGS_INSECURE"`
	TLS          OTelTLSConfig     `json:"tls" yaml:"tls"`
}

type OTelTLSConfig struct {
	CertFile string `json:"cert_file" yaml:"cert_file" env:"OTEL_EXPORTER_OTLP_LOGS_CLIENT_CERTIFICATE"`
	KeyFile  string `json:"key_file" yaml:"key_file" env:"OTEL_EXPORTER_OTLP_LOGS_CLIENT_KEY"`
	CAFile   string `json:"ca_file" yaml:"ca_file" env:"OTEL_EXPORTER_OTLP_LOGS_CERTIFICATE"`
}

func (c OTelTLSConfig) configured() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.CAFile != ""
}

// OTelWriter turns zerolog JSON lines into OTLP log records. The "component"
// field of a line selects the instrumentation scope.
type OTelWriter struct {
	provider *sdklog.LoggerProvider
	loggers  map[string]otellog.Logger
	mu       sync.Mutex
	ctx      context.Context
}

//nolint:gochecknoglobals // providers are flushed by Shutdown on exit
var (
	otelMu      sync.Mutex
	otelWriters []*OTelWriter
)

// NewOTelWriter builds an OTLP/gRPC exporter and batch processor for config.
// No connection is made until the first batch is exported.
func NewOTelWriter(ctx context.Context, config OTelConfig) (*OTelWriter, error) {
	if !config.Enabled {
		return nil, ErrOTelLoggingDisabled
	}

	if config.Endpoint == "" {
		return nil, ErrOTelEndpointRequired
	}

	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(config.Endpoint),
	}

	if config.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else if config.TLS.configured() {
		tlsConfig, err := setupTLSConfig(&config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS configuration: %w", err)
		}

		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(config.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(config.Headers))
	}

	batchTimeout := defaultOTelBatchTimeout

	if config.BatchTimeout != "" {
		d, err := time.ParseDuration(config.BatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid OTel batch timeout %q: %w", config.BatchTimeout, err)
		}

		batchTimeout = d
	}

	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = defaultOTelServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.GetVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	processor := sdklog.NewBatchProcessor(exporter, sdklog.WithExportTimeout(batchTimeout))

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)

	return &OTelWriter{
		provider: provider,
		loggers:  make(map[string]otellog.Logger),
		ctx:      context.WithoutCancel(ctx),
	}, nil
}

// Write never fails; lines that are not JSON objects are dropped.
func (w *OTelWriter) Write(p []byte) (int, error) {
	entry := make(map[string]interface{})
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil
	}

	var record otellog.Record

	if ts, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			record.SetTimestamp(parsed)
			delete(entry, "time")
		}
	}

	if level, ok := entry["level"].(string); ok {
		record.SetSeverity(severityFor(level))
		record.SetSeverityText(level)
		delete(entry, "level")
	}

	if message, ok := entry["message"].(string); ok {
		record.SetBody(otellog.StringValue(message))
		delete(entry, "message")
	}

	scope := defaultOTelScope
	if component, ok := entry["component"].(string); ok && component != "" {
		scope = component
		delete(entry, "component")
	}

	keys := make([]string, 0, len(entry))
	for key := range entry {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		record.AddAttributes(otellog.String(key, attributeValue(entry[key])))
	}

	w.scopeLogger(scope).Emit(w.ctx, record)

	return len(p), nil
}

func (w *OTelWriter) scopeLogger(scope string) otellog.Logger {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.loggers[scope]
	if !ok {
		l = w.provider.Logger(scope)
		w.loggers[scope] = l
	}

	return l
}

// Shutdown flushes buffered records and stops the exporter.
func (w *OTelWriter) Shutdown(ctx context.Context) error {
	return w.provider.Shutdown(ctx)
}

// Shutdown flushes every OTel writer created by New.
func Shutdown(ctx context.Context) error {
	otelMu.Lock()
	writers := otelWriters
	otelWriters = nil
	otelMu.Unlock()

	var errs []error

	for _, w := range writers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func registerOTelWriter(w *OTelWriter) {
	otelMu.Lock()
	defer otelMu.Unlock()

	otelWriters = append(otelWriters, w)
}

func attributeValue(value interface{}) string {
	var s string

	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		s = v
	case bool, float64:
		s = fmt.Sprint(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprint(v)
		} else {
			s = string(payload)
		}
	}

	return truncate(s, maxAttributeValueLength)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := s[:limit-3]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}

	return cut + "..."
}

func severityFor(level string) otellog.Severity {
	switch strings.ToLower(level) {
	case "trace":
		return otellog.SeverityTrace
	case "debug":
		return otellog.SeverityDebug
	case "info":
		return otellog.SeverityInfo
	case "warn", "warning":
		return otellog.SeverityWarn
	case "error":
		return otellog.SeverityError
	case "fatal", "panic":
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}

func setupTLSConfig(config *OTelTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if config.CertFile != "" && config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CAFile != "" {
		caCert, err := os.ReadFile(config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errFailedToParseCACert
		}

		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
