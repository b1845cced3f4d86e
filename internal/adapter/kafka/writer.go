// Package kafka publishes located origins to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/seismic-locator/internal/config"
	"github.com/couchcryptid/seismic-locator/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per persisted origin, keyed by association
// key so every revision of an event lands on the same partition.
// It implements pipeline.Notifier.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured origin topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaOriginTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishOrigin serializes the origin with its arrivals and writes it.
func (p *Publisher) PublishOrigin(ctx context.Context, origin domain.Origin) error {
	msg, err := serializeToMessage(origin)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish origin %s: %w", origin.AssociationKey, err)
	}
	p.logger.Debug("origin published", "association_key", origin.AssociationKey)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(origin domain.Origin) (kafkago.Message, error) {
	data, err := json.Marshal(origin)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize origin: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(origin.AssociationKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(origin.Status)},
			{Key: "n_stations", Value: []byte(strconv.Itoa(origin.NumStations))},
			{Key: "updated_at", Value: []byte(origin.UpdatedAt.Format(time.RFC3339Nano))},
		},
	}, nil
}
