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

// Package natsutil publishes scan cycle events to NATS JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

const connectionName = "devicepulse-scan-worker"

var errNilEvent = errors.New("nil scan cycle event")

// jsPublisher is the slice of jetstream.JetStream the publisher needs.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// streamManager is the slice of jetstream.JetStream used to provision the stream.
type streamManager interface {
	Stream(ctx context.Context, stream string) (jetstream.Stream, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EventPublisher publishes finished scan cycles as CloudEvents to JetStream.
type EventPublisher struct {
	js      jsPublisher
	conn    *nats.Conn
	subject string
	logger  logger.Logger
}

// NewEventPublisher creates a publisher on an existing JetStream context.
func NewEventPublisher(js jsPublisher, subject string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:      js,
		subject: subject,
		logger:  log,
	}
}

// Publish implements sweeper.Publisher. The cycle ID doubles as the JetStream
// message ID so a republished cycle is deduplicated by the server.
func (p *EventPublisher) Publish(ctx context.Context, event *models.CycleEvent) error {
	if event == nil || event.Report == nil {
		return errNilEvent
	}

	payload, err := json.Marshal(models.NewScanCycleCloudEvent(event, p.subject))
	if err != nil {
		return fmt.Errorf("failed to marshal scan cycle event: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, payload, jetstream.WithMsgID(event.Report.CycleID))
	if err != nil {
		return fmt.Errorf("failed to publish scan cycle event: %w", err)
	}

	p.logger.Debug().
		Str("cycle_id", event.Report.CycleID).
		Str("subject", p.subject).
		Uint64("seq", ack.Sequence).
		Msg("Published scan cycle event")

	return nil
}

// Close drains the underlying connection if the publisher owns one.
func (p *EventPublisher) Close() error {
	if p.conn == nil {
		return nil
	}

	return p.conn.Drain()
}

// ConnectWithEventPublisher dials NATS, makes sure the stream carries the
// configured subject and returns a publisher owning the connection.
func ConnectWithEventPublisher(ctx context.Context, cfg *models.PublishConfig, log logger.Logger) (*EventPublisher, error) {
	nc, err := Connect(cfg, log)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}

	publisher := NewEventPublisher(js, cfg.Subject, log)
	publisher.conn = nc

	return publisher, nil
}

// Connect opens a NATS connection with logging handlers and optional mTLS.
func Connect(cfg *models.PublishConfig, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(connectionName),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.TLS.Enabled() {
		tlsConf, err := TLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")

	return nc, nil
}

// ensureStream creates the stream if it is missing and widens its subject
// list when it does not cover subject yet.
func ensureStream(ctx context.Context, js streamManager, name, subject string) error {
	stream, err := js.Stream(ctx, name)

	switch {
	case err == nil:
		cfg := stream.CachedInfo().Config

		subjects := ensureSubjectList(cfg.Subjects, subject)
		if len(subjects) == len(cfg.Subjects) {
			return nil
		}

		cfg.Subjects = subjects
		_, err = js.CreateOrUpdateStream(ctx, cfg)
	case isStreamMissingErr(err):
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
		})
	default:
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}

	if err != nil {
		return fmt.Errorf("failed to create or update stream %s: %w", name, err)
	}

	return nil
}

func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether a NATS subject pattern covers subject.
func matchesSubject(pattern, subject string) bool {
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > i
		}

		if i >= len(subjectTokens) {
			return false
		}

		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
