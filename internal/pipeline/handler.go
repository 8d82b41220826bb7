package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// Status is the terminal state of one handled request.
type Status string

const (
	StatusRejected  Status = "rejected"
	StatusProbe     Status = "probe"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Outcome reports how a request ended.
type Outcome struct {
	Status Status
	RunID  string
	Reply  string // text sent to the user, empty when rejected
	Err    error  // set when Status is StatusFailed or StatusRejected
}

const (
	subjectValidation = "Twilio Validation Error"
	subjectFailure    = "Disaster SMS Error"
)

// Handler validates an inbound request and runs the aggregate → summarize →
// deliver sequence for it. It is the outermost failure boundary: whatever
// happens below it, a validated sender gets exactly one reply.
type Handler struct {
	validator  SignatureValidator
	refresher  Refresher
	summarizer SummaryProducer
	deliverer  Deliverer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewHandler creates a Handler.
func NewHandler(validator SignatureValidator, refresher Refresher, summarizer SummaryProducer, deliverer Deliverer, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		validator:  validator,
		refresher:  refresher,
		summarizer: summarizer,
		deliverer:  deliverer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handle processes one inbound webhook call.
func (h *Handler) Handle(ctx context.Context, req domain.InboundRequest) Outcome {
	if !h.validator.Validate(req.URL, req.Form, req.Signature) {
		return h.Reject(ctx, req, "signature mismatch")
	}

	trigger := req.Trigger()
	runID := uuid.NewString()
	logger := h.logger.With("run_id", runID, "from", trigger.From)
	logger.Info("sms received", "body", trigger.Body)

	if strings.EqualFold(strings.TrimSpace(trigger.Body), domain.ProbeKeyword) {
		h.deliverer.DeliverToUser(ctx, domain.ProbeReply, trigger.From)
		h.metrics.Triggers.WithLabelValues(string(StatusProbe)).Inc()
		return Outcome{Status: StatusProbe, RunID: runID, Reply: domain.ProbeReply}
	}

	start := time.Now()
	summary, err := h.run(ctx, logger, trigger)
	h.metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error("pipeline failed", "error", err)
		// The user's reply must not wait on the operator relay.
		h.deliverer.DeliverToUser(ctx, domain.ApologyReply, trigger.From)
		h.deliverer.DeliverToOperator(ctx, fmt.Sprintf("Error processing your request: %v", err), subjectFailure)
		h.metrics.Triggers.WithLabelValues(string(StatusFailed)).Inc()
		return Outcome{Status: StatusFailed, RunID: runID, Reply: domain.ApologyReply, Err: err}
	}

	h.deliverer.DeliverToUser(ctx, summary, trigger.From)
	h.metrics.Triggers.WithLabelValues(string(StatusProcessed)).Inc()
	logger.Info("sms processed", "duration", time.Since(start))
	return Outcome{Status: StatusProcessed, RunID: runID, Reply: summary}
}

// Reject reports a request that cannot be processed to the operator, with
// the same audit e-mail an invalid signature produces, and sends nothing to
// the caller. The transport uses it for bodies it could not read or parse.
func (h *Handler) Reject(ctx context.Context, req domain.InboundRequest, reason string) Outcome {
	err := &domain.ValidationError{Reason: reason}
	h.logger.Warn("rejected inbound request", "url", req.URL, "error", err)
	h.deliverer.DeliverToOperator(ctx, rejectionReport(req, reason), subjectValidation)
	h.metrics.Triggers.WithLabelValues(string(StatusRejected)).Inc()
	return Outcome{Status: StatusRejected, Err: err}
}

// run executes the aggregate and summarize stages. A panic in either is
// returned as an error so the caller can still reply.
func (h *Handler) run(ctx context.Context, logger *slog.Logger, trigger domain.TriggerMessage) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	logger.Info("aggregating sources")
	h.refresher.Refresh(ctx, trigger.Body)

	logger.Info("summarizing")
	summary, err = h.summarizer.Summarize(ctx, trigger.Body)
	if err != nil {
		return "", &domain.SummarizationError{Err: err}
	}
	return summary, nil
}

func rejectionReport(req domain.InboundRequest, reason string) string {
	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Twilio request validation failed: %s.\n\n", reason)
	fmt.Fprintf(&sb, "URL: %s\n\nHeaders:\n", req.URL)
	for _, name := range names {
		for _, v := range req.Headers[name] {
			fmt.Fprintf(&sb, "%s: %s\n", name, v)
		}
	}
	fmt.Fprintf(&sb, "\nBody:\n%s\n", req.RawBody)
	return sb.String()
}
