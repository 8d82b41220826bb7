package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-sms/internal/config"
)

// StatusPublisher writes one-word service status messages ("ok") to a
// retained-style Kafka topic so dashboards can see the last heartbeat.
// It implements http.StatusPublisher.
type StatusPublisher struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewStatusPublisher creates a Kafka producer for the configured status topic.
func NewStatusPublisher(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *StatusPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.StatusTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatusPublisher{writer: w, clock: clock, logger: logger}
}

// Publish writes status to the topic, keyed by service name so compacted
// topics keep only the latest value.
func (p *StatusPublisher) Publish(ctx context.Context, status string) error {
	msg := statusMessage(status, p.clock.Now())
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	p.logger.Debug("status published", "topic", p.writer.Topic, "status", status)
	return nil
}

func (p *StatusPublisher) Close() error {
	return p.writer.Close()
}

func statusMessage(status string, now time.Time) kafkago.Message {
	return kafkago.Message{
		Key:   []byte("disaster-sms"),
		Value: []byte(status),
		Headers: []kafkago.Header{
			{Key: "published_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}
}
