package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// SystemInstruction constrains the summary to something that reads well as a
// single SMS/MMS message.
const SystemInstruction = "Your task is to summarize the provided data to aid users in a potential emergency. " +
	"The user has requested information. Your summary will be provided to users who might be disconnected from the Internet, " +
	"whose only form of connectivity is MMS/SMS. Inform the user of any pertinent information that they may need to know in an " +
	"emergency scenario, such as weather, government messages, breaking news. If the user provided a specific request and/or location, " +
	"tailor the response accordingly and focus on locally pertinent information. Lastly, if it does seem there is an emergency, " +
	"analyze the overall situation to provide tailored advice. Avoid a detailed weather forecast except for severe weather. " +
	"Include the start and end date/time of any NWS alerts. Avoid generic advice; there is no need for basic reminders like keeping " +
	"the fridge closed, using generators outdoors, having a med kit, etc. Ignore irrelevant information. Be as concise as possible, " +
	"as your response will be sent via MMS/SMS. Don't use any line breaks."

// Summarizer condenses the cached data into a short reply.
type Summarizer struct {
	cache     domain.CacheStore
	completer Completer
	model     string
	maxTokens int
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSummarizer creates a Summarizer. maxTokens bounds the generated reply.
func NewSummarizer(cache domain.CacheStore, completer Completer, model string, maxTokens int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Summarizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Summarizer{
		cache:     cache,
		completer: completer,
		model:     model,
		maxTokens: maxTokens,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Summarize reads the cache, asks the completer for a summary, stores it under
// domain.KeySummary and returns it. A failed or empty completion yields
// domain.FallbackSummary and leaves the stored summary alone.
//
// err is non-nil only when the cache could not be listed at all; the returned
// text is the fallback in that case too.
func (s *Summarizer) Summarize(ctx context.Context, trigger string) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.metrics.Summaries.WithLabelValues("fallback").Inc()
		return domain.FallbackSummary, fmt.Errorf("read cache snapshot: %w", err)
	}
	if t := strings.TrimSpace(trigger); t != "" {
		snap = append(snap, domain.SnapshotEntry{Key: domain.KeyUserMessage, Value: t})
	}

	user, err := RenderSnapshot(snap)
	if err != nil {
		s.logger.Error("render snapshot", "error", err)
		s.metrics.Summaries.WithLabelValues("fallback").Inc()
		return domain.FallbackSummary, nil
	}
	s.logger.Debug("summary prompt", "entries", len(snap), "prompt_bytes", len(user))

	start := time.Now()
	text, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Model:     s.model,
		System:    SystemInstruction,
		User:      user,
		MaxTokens: s.maxTokens,
	})
	s.metrics.CompletionDuration.Observe(time.Since(start).Seconds())

	text = flattenLines(text)
	if err == nil && text == "" {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("summary unavailable, using fallback", "error", &domain.SummarizationError{Err: err})
		s.metrics.Summaries.WithLabelValues("fallback").Inc()
		return domain.FallbackSummary, nil
	}

	s.store(ctx, text)
	s.metrics.Summaries.WithLabelValues("generated").Inc()
	s.logger.Info("summary generated", "chars", len(text))
	return text, nil
}

func (s *Summarizer) store(ctx context.Context, text string) {
	value, err := json.Marshal(domain.SummaryResult{Text: text, GeneratedAt: s.clock.Now().UTC()})
	if err != nil {
		s.logger.Error("encode summary", "error", err)
		return
	}
	if err := s.cache.Set(ctx, domain.KeySummary, value); err != nil {
		s.logger.Error("store summary", "error", err)
		return
	}
	s.logger.Info("summary stored", "key", domain.KeySummary)
}

// Snapshot reads every live cache entry, ordered by key. Keys that expire
// between listing and reading, fail to read, or hold non UTF-8 bytes are
// skipped.
func (s *Summarizer) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	keys, err := s.cache.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	snap := make(domain.Snapshot, 0, len(keys))
	for _, key := range keys {
		if key == domain.KeyUserMessage {
			continue
		}
		value, err := s.cache.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cache key expired before read", "key", key)
			continue
		}
		if err != nil {
			s.logger.Error("read cache key", "key", key, "error", err)
			continue
		}
		if !utf8.Valid(value) {
			s.logger.Error("unable to decode cache value", "key", key)
			continue
		}
		snap = append(snap, domain.SnapshotEntry{Key: key, Value: string(value)})
	}
	return snap, nil
}

// RenderSnapshot renders the snapshot as one JSON object. Values that are
// themselves JSON are embedded as-is; everything else, and the user message
// always, is embedded as a string.
func RenderSnapshot(snap domain.Snapshot) (string, error) {
	doc := make(map[string]any, len(snap))
	for _, e := range snap {
		if e.Key != domain.KeyUserMessage && json.Valid([]byte(e.Value)) {
			doc[e.Key] = json.RawMessage(e.Value)
			continue
		}
		doc[e.Key] = e.Value
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

func flattenLines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
