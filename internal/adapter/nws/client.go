package nws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

// maxBodyBytes bounds a single feed response. Zone forecasts and alert
// collections are well under this once geometry is removed.
const maxBodyBytes = 8 << 20

// Feed fetches one NWS endpoint and implements pipeline.Source.
type Feed struct {
	name       string
	url        string
	userAgent  string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Options configures the HTTP behaviour shared by all feeds.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Clock      clockwork.Clock
}

// NewAlertsFeed returns the active-alerts feed for a zone or county code.
func NewAlertsFeed(countyCode string, opts Options, logger *slog.Logger) *Feed {
	return newFeed(domain.KeyAlerts, fmt.Sprintf("%s/alerts/active/zone/%s", strings.TrimRight(opts.BaseURL, "/"), countyCode), opts, logger)
}

// NewForecastFeed returns the county text-forecast feed.
func NewForecastFeed(countyCode string, opts Options, logger *slog.Logger) *Feed {
	return newFeed(domain.KeyForecast, fmt.Sprintf("%s/zones/county/%s/forecast", strings.TrimRight(opts.BaseURL, "/"), countyCode), opts, logger)
}

func newFeed(name, url string, opts Options, logger *slog.Logger) *Feed {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Feed{
		name:       name,
		url:        url,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		executor:   failsafe.With[*http.Response](newRetryPolicy(opts.MaxRetries)),
		clock:      clock,
		logger:     logger,
	}
}

// newRetryPolicy retries transport errors and 5xx responses. 4xx answers are
// final: a bad county code will not fix itself.
func newRetryPolicy(maxRetries int) retrypolicy.RetryPolicy[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(250*time.Millisecond, 2*time.Second).
		WithMaxRetries(maxRetries).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= http.StatusInternalServerError
		}).
		ReturnLastFailure().
		Build()
}

func (f *Feed) Name() string { return f.name }

// URL is the endpoint this feed reads.
func (f *Feed) URL() string { return f.url }

// Fetch downloads the feed and returns it with geometry stripped. The trigger
// message does not influence structured feeds.
func (f *Feed) Fetch(ctx context.Context, _ string) (domain.SourceRecord, error) {
	resp, err := f.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/geo+json")
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			// Drain so the connection can be reused by the retry.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}
		return resp, nil
	})
	if err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: f.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SourceRecord{}, &domain.SourceFetchError{
			Source: f.name,
			Err:    fmt.Errorf("nws API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: f.name, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(raw) == 0 {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: f.name, Err: domain.ErrEmptyResponse}
	}

	payload, err := domain.StripGeometry(raw)
	if err != nil {
		return domain.SourceRecord{}, &domain.SourceFetchError{Source: f.name, Err: err}
	}

	f.logger.Debug("nws feed fetched", "source", f.name, "bytes", len(raw), "stored_bytes", len(payload))

	return domain.SourceRecord{
		Source:    f.name,
		Payload:   payload,
		FetchedAt: f.clock.Now().UTC(),
	}, nil
}
