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

package models

import (
	"fmt"
	"time"

	"github.com/carverauto/devicepulse/pkg/logger"
)

const (
	ProbeMethodICMP = "icmp"
	ProbeMethodExec = "exec"
	ProbeMethodTCP  = "tcp"

	RegistrySourcePostgres = "postgres"
	RegistrySourceStatic   = "static"

	StoreKindPostgres = "postgres"
	StoreKindMemory   = "memory"

	PublishKindNATS  = "nats"
	PublishKindKafka = "kafka"

	DefaultInterval        = 60 * time.Second
	DefaultProbeTimeout    = 2 * time.Second
	DefaultProbeGrace      = time.Second
	DefaultPersistTimeout  = 30 * time.Second
	DefaultTCPPort         = 80
	DefaultMemoryCapacity  = 10000
	DefaultPostgresPort    = 5432
	DefaultPublishSubject  = "devicepulse.scan.cycles"
	DefaultPublishStream   = "devicepulse"
	defaultApplicationName = "devicepulse-scan-worker"
	maxPort                = 65535
)

// WorkerConfig is the scan worker configuration.
type WorkerConfig struct {
	Interval       Duration       `json:"interval" yaml:"interval" env:"SCAN_INTERVAL"`
	Probe          ProbeConfig    `json:"probe" yaml:"probe"`
	MaxConcurrency int            `json:"max_concurrency" yaml:"max_concurrency" env:"SCAN_MAX_CONCURRENCY"`
	ProbeRateLimit float64        `json:"probe_rate_limit" yaml:"probe_rate_limit" env:"SCAN_PROBE_RATE_LIMIT"`
	PersistTimeout Duration       `json:"persist_timeout" yaml:"persist_timeout" env:"SCAN_PERSIST_TIMEOUT"`
	Registry       RegistryConfig `json:"registry" yaml:"registry"`
	Store          StoreConfig    `json:"store" yaml:"store"`
	Database       DatabaseConfig `json:"database" yaml:"database"`
	Publish        PublishConfig  `json:"publish" yaml:"publish"`
	StatusAddr     string         `json:"status_addr" yaml:"status_addr" env:"STATUS_ADDR"`
	Logging        logger.Config  `json:"logging" yaml:"logging"`
}

// ProbeConfig selects and tunes the liveness probe.
type ProbeConfig struct {
	Method     string   `json:"method" yaml:"method" env:"PROBE_METHOD"`
	Timeout    Duration `json:"timeout" yaml:"timeout" env:"PROBE_TIMEOUT"`
	Grace      Duration `json:"grace" yaml:"grace" env:"PROBE_GRACE"`
	Privileged bool     `json:"privileged" yaml:"privileged" env:"PROBE_PRIVILEGED"`
	TCPPort    int      `json:"tcp_port" yaml:"tcp_port" env:"PROBE_TCP_PORT"`
	PingBinary string   `json:"ping_binary" yaml:"ping_binary" env:"PROBE_PING_BINARY"`
}

// RegistryConfig selects where the device roster comes from.
type RegistryConfig struct {
	Source  string   `json:"source" yaml:"source" env:"REGISTRY_SOURCE"`
	Devices []Device `json:"devices" yaml:"devices"`
}

// StoreConfig selects where scan results are written.
type StoreConfig struct {
	Kind           string `json:"kind" yaml:"kind" env:"STORE_KIND"`
	MemoryCapacity int    `json:"memory_capacity" yaml:"memory_capacity" env:"STORE_MEMORY_CAPACITY"`
}

// DatabaseConfig holds PostgreSQL connection settings. The environment names
// match the ones used by the device management application.
type DatabaseConfig struct {
	Host            string `json:"host" yaml:"host" env:"DB_HOST"`
	Port            int    `json:"port" yaml:"port" env:"POSTGRES_PORT"`
	Database        string `json:"database" yaml:"database" env:"POSTGRES_DB"`
	Username        string `json:"username" yaml:"username" env:"POSTGRES_USER"`
	Password        string `json:"password" yaml:"password" env:"POSTGRES_PASSWORD"`
	SSLMode         string `json:"ssl_mode" yaml:"ssl_mode" env:"POSTGRES_SSLMODE"`
	ApplicationName string `json:"application_name" yaml:"application_name"`
	MaxConnections  int32  `json:"max_connections" yaml:"max_connections" env:"POSTGRES_MAX_CONNS"`
	MinConnections  int32  `json:"min_connections" yaml:"min_connections" env:"POSTGRES_MIN_CONNS"`
	Migrate         bool   `json:"migrate" yaml:"migrate" env:"POSTGRES_MIGRATE"`
}

// PublishConfig enables publication of finished cycles.
type PublishConfig struct {
	Kind    string    `json:"kind" yaml:"kind" env:"PUBLISH_KIND"`
	URL     string    `json:"url" yaml:"url" env:"NATS_URL"`
	Subject string    `json:"subject" yaml:"subject" env:"NATS_SUBJECT"`
	Stream  string    `json:"stream" yaml:"stream" env:"NATS_STREAM"`
	Brokers []string  `json:"brokers" yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string    `json:"topic" yaml:"topic" env:"KAFKA_TOPIC"`
	TLS     TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig holds client certificate material for the NATS connection. It is
// ignored while CertFile is empty.
type TLSConfig struct {
	CAFile     string `json:"ca_file" yaml:"ca_file" env:"NATS_CA_FILE"`
	CertFile   string `json:"cert_file" yaml:"cert_file" env:"NATS_CERT_FILE"`
	KeyFile    string `json:"key_file" yaml:"key_file" env:"NATS_KEY_FILE"`
	ServerName string `json:"server_name" yaml:"server_name" env:"NATS_SERVER_NAME"`
}

// Enabled reports whether client certificates are configured.
func (t *TLSConfig) Enabled() bool {
	return t.CertFile != ""
}

// ApplyDefaults fills zero values with the worker defaults.
func (c *WorkerConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = Duration(DefaultInterval)
	}

	if c.PersistTimeout == 0 {
		c.PersistTimeout = Duration(DefaultPersistTimeout)
	}

	if c.Probe.Method == "" {
		c.Probe.Method = ProbeMethodICMP
	}

	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(DefaultProbeTimeout)
	}

	if c.Probe.Grace == 0 {
		c.Probe.Grace = Duration(DefaultProbeGrace)
	}

	if c.Probe.TCPPort == 0 {
		c.Probe.TCPPort = DefaultTCPPort
	}

	if c.Registry.Source == "" {
		c.Registry.Source = RegistrySourcePostgres
	}

	if c.Store.Kind == "" {
		c.Store.Kind = StoreKindPostgres
	}

	if c.Store.MemoryCapacity == 0 {
		c.Store.MemoryCapacity = DefaultMemoryCapacity
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultPostgresPort
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Database.ApplicationName == "" {
		c.Database.ApplicationName = defaultApplicationName
	}

	if c.Publish.Subject == "" {
		c.Publish.Subject = DefaultPublishSubject
	}

	if c.Publish.Stream == "" {
		c.Publish.Stream = DefaultPublishStream
	}

	if c.Publish.Topic == "" {
		c.Publish.Topic = DefaultPublishSubject
	}
}

// UsesPostgres reports whether any collaborator needs a database pool.
func (c *WorkerConfig) UsesPostgres() bool {
	return c.Registry.Source == RegistrySourcePostgres || c.Store.Kind == StoreKindPostgres
}

// Validate implements config.Validator.
func (c *WorkerConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}

	if err := c.Probe.validate(); err != nil {
		return err
	}

	if c.MaxConcurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.ProbeRateLimit < 0 {
		return ErrInvalidRateLimit
	}

	switch c.Registry.Source {
	case RegistrySourcePostgres:
	case RegistrySourceStatic:
		seen := make(map[int64]int, len(c.Registry.Devices))

		for i, d := range c.Registry.Devices {
			if d.ID <= 0 {
				return fmt.Errorf("%w: device %d needs a positive id", ErrInvalidDevice, i)
			}

			if d.Address == "" {
				return fmt.Errorf("%w: device %d has no address", ErrInvalidDevice, i)
			}

			if first, dup := seen[d.ID]; dup {
				return fmt.Errorf("%w: devices %d and %d share id %d", ErrInvalidDevice, first, i, d.ID)
			}

			seen[d.ID] = i
		}

		if c.Store.Kind == StoreKindMemory && c.Store.MemoryCapacity > 0 &&
			len(c.Registry.Devices) > c.Store.MemoryCapacity {
			return fmt.Errorf("%w: %d devices, capacity %d", ErrMemoryCapacityTooSmall,
				len(c.Registry.Devices), c.Store.MemoryCapacity)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRegistrySource, c.Registry.Source)
	}

	switch c.Store.Kind {
	case StoreKindPostgres, StoreKindMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreKind, c.Store.Kind)
	}

	if c.UsesPostgres() && (c.Database.Host == "" || c.Database.Database == "") {
		return ErrDatabaseRequired
	}

	return c.Publish.validate()
}

func (p *ProbeConfig) validate() error {
	if p.Timeout <= 0 {
		return ErrInvalidProbeTimeout
	}

	switch p.Method {
	case ProbeMethodICMP, ProbeMethodExec:
	case ProbeMethodTCP:
		if p.TCPPort <= 0 || p.TCPPort > maxPort {
			return fmt.Errorf("%w: %d", ErrInvalidTCPPort, p.TCPPort)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProbeMethod, p.Method)
	}

	return nil
}

func (p *PublishConfig) validate() error {
	switch p.Kind {
	case "":
		return nil
	case PublishKindNATS:
		if p.URL == "" {
			return fmt.Errorf("%w: nats url", ErrPublishEndpoint)
		}
	case PublishKindKafka:
		if len(p.Brokers) == 0 {
			return fmt.Errorf("%w: kafka brokers", ErrPublishEndpoint)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPublishKind, p.Kind)
	}

	return nil
}
