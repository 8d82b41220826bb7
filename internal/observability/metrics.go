package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the SMS pipeline.
type Metrics struct {
	// Aggregation.
	SourceFetches       *prometheus.CounterVec   // labels: source, outcome={success,error,empty}
	SourceFetchDuration *prometheus.HistogramVec // labels: source

	// Summarization.
	Summaries          *prometheus.CounterVec // labels: outcome={generated,fallback}
	CompletionDuration prometheus.Histogram

	// Delivery and request handling.
	Deliveries       *prometheus.CounterVec // labels: channel={sms,email}, outcome={sent,failed,skipped}
	Triggers         *prometheus.CounterVec // labels: outcome={processed,probe,rejected,failed}
	PipelineDuration prometheus.Histogram

	StatusPublishes *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SourceFetches,
		m.SourceFetchDuration,
		m.Summaries,
		m.CompletionDuration,
		m.Deliveries,
		m.Triggers,
		m.PipelineDuration,
		m.StatusPublishes,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_sms",
			Name:      "source_fetch_total",
			Help:      "Source refresh attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disaster_sms",
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of a single source refresh, including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_sms",
			Name:      "summaries_total",
			Help:      "Summaries produced, by whether generation succeeded or fell back.",
		}, []string{"outcome"}),
		CompletionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "disaster_sms",
			Name:      "completion_duration_seconds",
			Help:      "Text-generation request duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_sms",
			Name:      "deliveries_total",
			Help:      "Outbound notification attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_sms",
			Name:      "triggers_total",
			Help:      "Inbound webhook triggers by final outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "disaster_sms",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a full aggregate-summarize-deliver run.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		StatusPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_sms",
			Name:      "status_publish_total",
			Help:      "Liveness status publishes by outcome.",
		}, []string{"outcome"}),
	}
}
