// Package kafka publishes file lifecycle events. Publishing is optional;
// downstream consumers (catalog indexers, retention jobs) subscribe to the
// event topic when the deployment enables it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/observability"
)

// Publisher produces file lifecycle events to a Kafka topic.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the event topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes and writes one lifecycle event. A nil Publisher is a
// no-op so callers never need to branch on whether events are enabled.
func (p *Publisher) Publish(ctx context.Context, event domain.FileEvent) error {
	if p == nil {
		return nil
	}
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish file event: %w", err)
	}
	p.metrics.EventsPublished.Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// serializeToMessage marshals a FileEvent into a Kafka message keyed by file ID.
func serializeToMessage(event domain.FileEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize file event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.File.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
