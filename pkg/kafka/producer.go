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

// Package kafka publishes scan cycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

var errNilEvent = errors.New("nil scan cycle event")

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements sweeper.Publisher on top of a kafka.Writer. Messages
// are keyed by cycle ID.
type Producer struct {
	writer messageWriter
	topic  string
	logger logger.Logger
}

// NewProducer creates a producer for the configured brokers and topic.
func NewProducer(cfg *models.PublishConfig, log logger.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}, cfg.Topic, log)
}

func newProducer(writer messageWriter, topic string, log logger.Logger) *Producer {
	return &Producer{
		writer: writer,
		topic:  topic,
		logger: log,
	}
}

// Publish writes one message per finished cycle.
func (p *Producer) Publish(ctx context.Context, event *models.CycleEvent) error {
	if event == nil || event.Report == nil {
		return errNilEvent
	}

	payload, err := json.Marshal(models.NewScanCycleCloudEvent(event, p.topic))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Report.CycleID),
		Value: payload,
		Time:  event.Report.FinishedAt,
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(models.ScanCycleEventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write scan cycle event to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("cycle_id", event.Report.CycleID).
		Str("topic", p.topic).
		Msg("Published scan cycle event")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
