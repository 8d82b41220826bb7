package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

const newsSystemPrompt = "You are providing a response as part of the back end of an emergency SMS service."

// NewsSource asks a web-search-capable model for current emergency news
// around the configured location, steered by the user's own message.
type NewsSource struct {
	completer Completer
	model     string
	location  string
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewNewsSource creates the free-text news source.
func NewNewsSource(completer Completer, model, location string, clock clockwork.Clock, logger *slog.Logger) *NewsSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NewsSource{
		completer: completer,
		model:     model,
		location:  location,
		clock:     clock,
		logger:    logger,
	}
}

func (s *NewsSource) Name() string { return domain.KeyNewsSummary }

// Fetch runs one search completion. A blank answer is reported as
// domain.ErrEmptyResponse so the cached value is kept.
func (s *NewsSource) Fetch(ctx context.Context, trigger string) (domain.SourceRecord, error) {
	query := NewsQuery(s.location, domain.NewsCategory, trigger)
	s.logger.Debug("news search query", "query", query)

	text, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Model:  s.model,
		System: newsSystemPrompt,
		User:   query,
	})
	if err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: s.Name(), Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: s.Name(), Err: domain.ErrEmptyResponse}
	}

	payload, err := json.Marshal(text)
	if err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: s.Name(), Err: fmt.Errorf("encode news: %w", err)}
	}
	return domain.SourceRecord{
		Source:    s.Name(),
		Payload:   payload,
		FetchedAt: s.clock.Now().UTC(),
	}, nil
}

// NewsQuery builds the single natural-language search request. The user's
// message comes first so a location or concern they name takes precedence
// over the configured default.
func NewsQuery(location, category, trigger string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user's message activating this request was: '%s'. ", strings.TrimSpace(trigger))
	sb.WriteString("Tailor your response to any specific user request, inquiry, or circumstance. ")
	sb.WriteString("Search for information about any current or ongoing emergency or disaster affecting the user's vicinity. ")
	if location != "" {
		fmt.Fprintf(&sb, "If the user didn't provide a location, use the default of %s. ", location)
	}
	sb.WriteString("Search for any relevant news, state or federal bulletins or announcements, curfews, evacuations, or other emergency information. ")
	fmt.Fprintf(&sb, "If the user did not specify the disaster, look for %s: for example, hurricane, tornado, flooding, wildfire, earthquake, "+
		"nuclear disaster, train derailment, terrorist attack, missile alert, cyberattack. ", category)
	sb.WriteString("Focus on essential information that would be useful to someone lacking power or connectivity: what's happening, what to do, and any official government recommendations. ")
	sb.WriteString("If the cause or nature of the disaster is still unclear, just include the most helpful information. ")
	sb.WriteString("Non-severe weather information is not needed. ")
	sb.WriteString("If no emergency or disaster is found, simply state so. ")
	sb.WriteString("Respond with a summary of the useful information, organized by source.")
	return sb.String()
}
