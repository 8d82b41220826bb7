package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// defaultEmailTimeout bounds one operator report so a stalled relay cannot
// hold the request that triggered it.
const defaultEmailTimeout = 30 * time.Second

// Notifier delivers replies to users over SMS and reports to the operator
// over e-mail. Nothing it does returns an error: a failed notification is
// logged and counted, and never retried.
type Notifier struct {
	sms      SMSSender
	email    EmailSender
	operator string
	logger   *slog.Logger
	metrics  *observability.Metrics

	emailTimeout time.Duration
}

// NewNotifier creates a Notifier. operator is the default report recipient
// and may be empty.
func NewNotifier(sms SMSSender, email EmailSender, operator string, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{
		sms:      sms,
		email:    email,
		operator: operator,
		logger:   logger,
		metrics:  metrics,

		emailTimeout: defaultEmailTimeout,
	}
}

// WithEmailTimeout overrides how long one operator report may take.
// Non-positive values keep the current timeout.
func (n *Notifier) WithEmailTimeout(d time.Duration) *Notifier {
	if d > 0 {
		n.emailTimeout = d
	}
	return n
}

// DeliverToUser sends text by SMS. Blank text is replaced by the fallback
// summary so the user never receives an empty message.
func (n *Notifier) DeliverToUser(ctx context.Context, text, recipient string) {
	if strings.TrimSpace(text) == "" {
		text = domain.FallbackSummary
	}
	n.deliver(ctx, domain.NotificationRequest{
		Channel:    domain.ChannelSMS,
		Recipients: []string{recipient},
		Body:       text,
	})
}

// DeliverToOperator e-mails text to recipients, or to the configured operator
// address when none are given. With neither, it logs and does nothing.
func (n *Notifier) DeliverToOperator(ctx context.Context, text, subject string, recipients ...string) {
	recipients = nonEmpty(recipients)
	if len(recipients) == 0 && n.operator != "" {
		recipients = []string{n.operator}
	}
	if len(recipients) == 0 {
		n.logger.Error("no recipients for operator email", "subject", subject)
		n.metrics.Deliveries.WithLabelValues(string(domain.ChannelEmail), "skipped").Inc()
		return
	}
	n.deliver(ctx, domain.NotificationRequest{
		Channel:    domain.ChannelEmail,
		Recipients: recipients,
		Body:       text,
		Subject:    subject,
	})
}

func (n *Notifier) deliver(ctx context.Context, req domain.NotificationRequest) {
	logger := n.logger.With("channel", req.Channel, "recipients", req.Recipients)

	var err error
	switch req.Channel {
	case domain.ChannelSMS:
		var sid string
		sid, err = n.sms.Send(ctx, req.Body, req.Recipients[0])
		if err == nil {
			logger = logger.With("sid", sid)
		}
	case domain.ChannelEmail:
		logger.Info("sending operator email", "subject", req.Subject)
		emailCtx, cancel := context.WithTimeout(ctx, n.emailTimeout)
		err = n.email.Send(emailCtx, req.Body, req.Subject, req.Recipients)
		cancel()
	default:
		err = fmt.Errorf("unknown channel %q", req.Channel)
	}

	if err != nil {
		outcome := "failed"
		if errors.Is(err, domain.ErrNotConfigured) {
			outcome = "skipped"
		}
		logger.Error("delivery failed", "error", &domain.DeliveryError{Channel: req.Channel, Err: err})
		n.metrics.Deliveries.WithLabelValues(string(req.Channel), outcome).Inc()
		return
	}
	logger.Info("notification sent")
	n.metrics.Deliveries.WithLabelValues(string(req.Channel), "sent").Inc()
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
