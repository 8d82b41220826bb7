package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/disaster-sms/internal/adapter/twilio"
	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
	"github.com/couchcryptid/disaster-sms/internal/pipeline"
)

const (
	maxWebhookBytes = 64 << 10
	pipelineTimeout = 3 * time.Minute
	statusTimeout   = 5 * time.Second
	statusOK        = "ok"
)

// WebhookHandler runs one inbound SMS through the pipeline, or reports one
// the server could not decode.
type WebhookHandler interface {
	Handle(ctx context.Context, req domain.InboundRequest) pipeline.Outcome
	Reject(ctx context.Context, req domain.InboundRequest, reason string) pipeline.Outcome
}

// StatusPublisher announces liveness to subscribers.
type StatusPublisher interface {
	Publish(ctx context.Context, status string) error
}

// Options configures the HTTP surface.
type Options struct {
	Addr string
	// PublicBaseURL, when set, replaces the scheme and host of the request
	// when rebuilding the URL Twilio signed (e.g. behind a proxy).
	PublicBaseURL string
}

// Server exposes the Twilio webhook plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer    *http.Server
	webhook       WebhookHandler
	status        StatusPublisher
	publicBaseURL string
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewServer creates the HTTP server. status may be nil, in which case
// /health only reports.
func NewServer(opts Options, webhook WebhookHandler, ready sharedobs.ReadinessChecker, status StatusPublisher, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: pipelineTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		webhook:       webhook,
		status:        status,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:        logger,
		metrics:       metrics,
	}

	mux.HandleFunc("POST /sms", s.handleSMS)
	mux.HandleFunc("POST /sms_api", s.handleSMS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	// Twilio gives up on slow webhooks; the reply SMS must still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), pipelineTimeout)
	defer cancel()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	req := domain.InboundRequest{
		URL:       s.signedURL(r),
		Signature: r.Header.Get(twilio.SignatureHeader),
		Headers:   r.Header.Clone(),
		RawBody:   raw,
	}
	if err != nil {
		s.webhook.Reject(ctx, req, "request body too large")
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}
	req.Form, err = url.ParseQuery(string(raw))
	if err != nil {
		s.webhook.Reject(ctx, req, "malformed form body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed form body"})
		return
	}

	out := s.webhook.Handle(ctx, req)
	if out.Status == pipeline.StatusRejected {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Twilio request validation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "SMS received and processed",
	})
}

// signedURL rebuilds the absolute URL Twilio computed the signature over.
func (s *Server) signedURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.status != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		if err := s.status.Publish(ctx, statusOK); err != nil {
			s.logger.Warn("status publish failed", "error", err)
			s.metrics.StatusPublishes.WithLabelValues("error").Inc()
		} else {
			s.metrics.StatusPublishes.WithLabelValues("success").Inc()
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
