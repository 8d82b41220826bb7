package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/couchcryptid/disaster-sms/internal/adapter/redis"
	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// --- mocks ---

type mockSource struct {
	name    string
	payload string
	err     error
	panics  bool
	calls   atomic.Int32
	trigger atomic.Value
	fetchFn func(ctx context.Context) error
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context, trigger string) (domain.SourceRecord, error) {
	m.calls.Add(1)
	m.trigger.Store(trigger)
	if m.fetchFn != nil {
		if err := m.fetchFn(ctx); err != nil {
			return domain.SourceRecord{}, err
		}
	}
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: m.name, Err: m.err}
	}
	return domain.SourceRecord{
		Source:    m.name,
		Payload:   json.RawMessage(m.payload),
		FetchedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

type mockCompleter struct {
	mu   sync.Mutex
	text string
	err  error
	reqs []domain.CompletionRequest
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return m.text, m.err
}

func (m *mockCompleter) requests() []domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CompletionRequest(nil), m.reqs...)
}

// recorder captures outbound notifications in the order they were attempted.
type recorder struct {
	mu     sync.Mutex
	events []sent
}

type sent struct {
	channel    domain.Channel
	body       string
	subject    string
	recipients []string
}

func (r *recorder) add(s sent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.events...)
}

func (r *recorder) byChannel(ch domain.Channel) []sent {
	var out []sent
	for _, s := range r.all() {
		if s.channel == ch {
			out = append(out, s)
		}
	}
	return out
}

type mockSMS struct {
	rec *recorder
	err error
}

func (m *mockSMS) Send(_ context.Context, body, to string) (string, error) {
	m.rec.add(sent{channel: domain.ChannelSMS, body: body, recipients: []string{to}})
	if m.err != nil {
		return "", m.err
	}
	return "SM123", nil
}

type mockEmail struct {
	rec *recorder
	err error

	// block holds Send until its context ends, like a relay that never answers.
	block bool
}

func (m *mockEmail) Send(ctx context.Context, body, subject string, recipients []string) error {
	m.rec.add(sent{channel: domain.ChannelEmail, body: body, subject: subject, recipients: recipients})
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

type mockValidator struct {
	ok bool
}

func (m mockValidator) Validate(string, url.Values, string) bool { return m.ok }

type mockRefresher struct {
	calls  atomic.Int32
	panics bool
}

func (m *mockRefresher) Refresh(context.Context, string) {
	m.calls.Add(1)
	if m.panics {
		panic("refresh exploded")
	}
}

type mockSummarizer struct {
	calls atomic.Int32
	text  string
	err   error
}

func (m *mockSummarizer) Summarize(context.Context, string) (string, error) {
	m.calls.Add(1)
	return m.text, m.err
}

// countingCache wraps a CacheStore and counts every call made through it.
type countingCache struct {
	inner domain.CacheStore
	calls atomic.Int32
}

func (c *countingCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.calls.Add(1)
	return c.inner.SetWithTTL(ctx, key, value, ttl)
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte) error {
	c.calls.Add(1)
	return c.inner.Set(ctx, key, value)
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.Get(ctx, key)
}

func (c *countingCache) Keys(ctx context.Context) ([]string, error) {
	c.calls.Add(1)
	return c.inner.Keys(ctx)
}

// unreachableCache fails every call.
type unreachableCache struct{}

var errUnreachable = errors.New("dial tcp: connection refused")

func (unreachableCache) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return errUnreachable
}
func (unreachableCache) Set(context.Context, string, []byte) error { return errUnreachable }
func (unreachableCache) Get(context.Context, string) ([]byte, error) {
	return nil, errUnreachable
}
func (unreachableCache) Keys(context.Context) ([]string, error) { return nil, errUnreachable }

// --- helpers ---

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewStore(client), mr
}

func decodeRecord(t *testing.T, raw string) domain.SourceRecord {
	t.Helper()
	var rec domain.SourceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode source record: %v", err)
	}
	return rec
}
