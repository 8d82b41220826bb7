package nws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

const (
	testCounty        = "TXC453"
	testUserAgent     = "disaster-sms-test (ops@example.com)"
	contentTypeGeo    = "application/geo+json"
	headerContentType = "Content-Type"
)

var fixedNow = time.Date(2026, 5, 14, 21, 30, 0, 0, time.UTC)

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:    baseURL,
		UserAgent:  testUserAgent,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Clock:      clockwork.NewFakeClockAt(fixedNow),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAlertsFeed_Success_StripsGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/active/zone/"+testCounty, r.URL.Path)
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))

		w.Header().Set(headerContentType, contentTypeGeo)
		_, _ = w.Write([]byte(`{
			"type": "FeatureCollection",
			"geometry": {"type": "Polygon", "coordinates": [[[-97.9, 30.1], [-97.5, 30.4]]]},
			"features": [{
				"id": "urn:oid:2.49.0.1.840.0.abc",
				"geometry": {"type": "Polygon", "coordinates": [[[-97.9, 30.1]]]},
				"properties": {"event": "Flash Flood Warning", "onset": "2026-05-14T20:00:00-05:00", "ends": "2026-05-15T02:00:00-05:00"}
			}],
			"title": "Current watches, warnings, and advisories"
		}`))
	}))
	defer srv.Close()

	feed := NewAlertsFeed(testCounty, testOptions(srv.URL), discardLogger())
	assert.Equal(t, domain.KeyAlerts, feed.Name())

	rec, err := feed.Fetch(context.Background(), "any message")
	require.NoError(t, err)

	assert.Equal(t, domain.KeyAlerts, rec.Source)
	assert.Equal(t, fixedNow, rec.FetchedAt)
	assert.NotContains(t, string(rec.Payload), "geometry")
	assert.Contains(t, string(rec.Payload), "Flash Flood Warning")
	assert.Contains(t, string(rec.Payload), "2026-05-15T02:00:00-05:00")
}

func TestForecastFeed_URL(t *testing.T) {
	feed := NewForecastFeed(testCounty, testOptions("https://api.weather.gov/"), discardLogger())

	assert.Equal(t, domain.KeyForecast, feed.Name())
	assert.Equal(t, "https://api.weather.gov/zones/county/TXC453/forecast", feed.URL())
}

func TestFeed_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"title":"Not Found"}`))
	}))
	defer srv.Close()

	feed := NewForecastFeed("XXC000", testOptions(srv.URL), discardLogger())
	_, err := feed.Fetch(context.Background(), "")
	require.Error(t, err)

	var fe *domain.SourceFetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.KeyForecast, fe.Source)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFeed_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set(headerContentType, contentTypeGeo)
		_, _ = w.Write([]byte(`{"properties":{"periods":[{"name":"Tonight","detailedForecast":"Severe storms likely."}]}}`))
	}))
	defer srv.Close()

	feed := NewForecastFeed(testCounty, testOptions(srv.URL), discardLogger())
	rec, err := feed.Fetch(context.Background(), "")
	require.NoError(t, err)

	assert.Contains(t, string(rec.Payload), "Severe storms likely.")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFeed_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := NewAlertsFeed(testCounty, testOptions(srv.URL), discardLogger())
	_, err := feed.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFeed_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	feed := NewAlertsFeed(testCounty, testOptions(srv.URL), discardLogger())
	_, err := feed.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode geojson")
}

func TestFeed_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	feed := NewAlertsFeed(testCounty, testOptions(srv.URL), discardLogger())
	_, err := feed.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)
}

func TestFeed_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Timeout = 50 * time.Millisecond
	opts.MaxRetries = 0

	feed := NewAlertsFeed(testCounty, opts, discardLogger())
	_, err := feed.Fetch(context.Background(), "")
	require.Error(t, err)
}
