//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	httpadapter "github.com/couchcryptid/disaster-sms/internal/adapter/http"
	"github.com/couchcryptid/disaster-sms/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-sms/internal/config"
	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
	"github.com/couchcryptid/disaster-sms/internal/pipeline"
)

const testStatusTopic = "test-status"

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("disaster-sms-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func readStatus(ctx context.Context, t *testing.T, broker string) kafkago.Message {
	t.Helper()
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testStatusTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read from status topic")
	return msg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStatusPublisher verifies a status word reaches the topic with its key
// and timestamp header.
func TestStatusPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStatusTopic)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cfg := &config.Config{KafkaBrokers: []string{broker}, StatusTopic: testStatusTopic}
	publisher := kafka.NewStatusPublisher(cfg, clockwork.NewFakeClockAt(now), discardLogger())
	defer publisher.Close()

	require.NoError(t, publisher.Publish(ctx, "ok"))

	msg := readStatus(ctx, t, broker)
	assert.Equal(t, "disaster-sms", string(msg.Key))
	assert.Equal(t, "ok", string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "published_at", msg.Headers[0].Key)
	assert.Equal(t, "2026-09-01T12:00:00Z", string(msg.Headers[0].Value))
}

type noopWebhook struct{}

func (noopWebhook) Handle(context.Context, domain.InboundRequest) pipeline.Outcome {
	return pipeline.Outcome{Status: pipeline.StatusProcessed}
}

func (noopWebhook) Reject(context.Context, domain.InboundRequest, string) pipeline.Outcome {
	return pipeline.Outcome{Status: pipeline.StatusRejected}
}

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

// TestHealthEndpointPublishesStatus drives GET /health against a real broker.
func TestHealthEndpointPublishesStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStatusTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, StatusTopic: testStatusTopic}
	publisher := kafka.NewStatusPublisher(cfg, nil, discardLogger())
	defer publisher.Close()

	metrics := observability.NewMetricsForTesting()
	srv := httpadapter.NewServer(httpadapter.Options{}, noopWebhook{}, alwaysReady{}, publisher, discardLogger(), metrics)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	msg := readStatus(ctx, t, broker)
	assert.Equal(t, "ok", string(msg.Value))
}
