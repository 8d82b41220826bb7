package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// Aggregator refreshes every source into the cache. A failed source keeps
// whatever value it last stored.
type Aggregator struct {
	sources []Source
	cache   domain.CacheStore
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator over the given sources.
func NewAggregator(sources []Source, cache domain.CacheStore, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		sources: sources,
		cache:   cache,
		ttl:     domain.SourceTTL,
		logger:  logger,
		metrics: metrics,
	}
}

// Refresh fetches all sources concurrently and returns once each has stored
// its record or failed. Failures are logged and counted, never returned. The
// group is not context-bound, so one failing source never cancels the rest.
func (a *Aggregator) Refresh(ctx context.Context, trigger string) {
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	for _, src := range a.sources {
		g.Go(func() error {
			err := a.refreshOne(ctx, src, trigger)
			if err != nil {
				failed.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("refresh completed with failed sources",
			"failed", failed.Load(), "sources", len(a.sources), "first_error", err)
	}
}

// refreshOne stores one source's record. An empty response is not a failure.
func (a *Aggregator) refreshOne(ctx context.Context, src Source, trigger string) error {
	name := src.Name()
	start := time.Now()
	defer func() {
		a.metrics.SourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	rec, err := a.fetch(ctx, src, trigger)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyResponse) {
			a.logger.Info("source returned no content, keeping cached value", "source", name)
			a.metrics.SourceFetches.WithLabelValues(name, "empty").Inc()
			return nil
		}
		a.logger.Error("source fetch failed, keeping cached value", "source", name, "error", err)
		a.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		return err
	}

	value, err := json.Marshal(rec)
	if err != nil {
		a.logger.Error("encode source record", "source", name, "error", err)
		a.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("encode %s record: %w", name, err)
	}
	if err := a.cache.SetWithTTL(ctx, name, value, a.ttl); err != nil {
		a.logger.Error("store source record", "source", name, "error", err)
		a.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("store %s record: %w", name, err)
	}

	a.logger.Info("source refreshed", "source", name, "bytes", len(value))
	a.metrics.SourceFetches.WithLabelValues(name, "success").Inc()
	return nil
}

// fetch isolates a misbehaving source: a panic inside one fetcher is turned
// into that source's error.
func (a *Aggregator) fetch(ctx context.Context, src Source, trigger string) (rec domain.SourceRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.SourceFetchError{Source: src.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return src.Fetch(ctx, trigger)
}
