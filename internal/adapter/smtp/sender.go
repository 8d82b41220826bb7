package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wneessen/go-mail"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

// dialTimeout caps each relay session when ctx carries no earlier deadline.
const dialTimeout = 10 * time.Second

// Config describes an authenticated SMTP relay.
type Config struct {
	RelayHost    string // host:port
	User         string
	Password     string
	SenderDomain string // messages are sent from system@<SenderDomain>
}

func (c Config) complete() bool {
	return c.RelayHost != "" && c.User != "" && c.Password != "" && c.SenderDomain != ""
}

// Sender delivers plain-text mail through the relay. It implements
// pipeline.EmailSender.
type Sender struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewSender creates a relay sender. A partially configured relay is allowed;
// Send then reports domain.ErrNotConfigured.
func NewSender(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Sender {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sender{cfg: cfg, clock: clock, logger: logger}
}

// Send delivers one message per recipient. STARTTLS is negotiated whenever
// the relay offers it. The first failing recipient stops the run, and Send
// returns no later than ctx's deadline.
func (s *Sender) Send(ctx context.Context, body, subject string, recipients []string) error {
	if !s.cfg.complete() {
		return fmt.Errorf("smtp relay: %w", domain.ErrNotConfigured)
	}
	if len(recipients) == 0 {
		return errors.New("smtp: no recipients")
	}

	host, portStr, err := net.SplitHostPort(s.cfg.RelayHost)
	if err != nil {
		return fmt.Errorf("smtp relay host %q: %w", s.cfg.RelayHost, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("smtp relay host %q: invalid port: %w", s.cfg.RelayHost, err)
	}

	from := "system@" + s.cfg.SenderDomain
	body = normalizeNewlines(body)
	for _, to := range recipients {
		msg, err := s.buildMessage(from, to, subject, body)
		if err != nil {
			return err
		}
		s.logger.Info("sending email via smtp relay", "recipient", to)
		if err := s.deliver(ctx, host, port, msg); err != nil {
			return fmt.Errorf("send mail to %s: %w", to, err)
		}
	}
	return nil
}

func (s *Sender) buildMessage(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("smtp recipient %q: %w", to, err)
	}
	msg.Subject(sanitizeHeader(subject))
	msg.SetDateWithValue(s.clock.Now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// deliver runs one relay session. The client timeout is clipped to ctx's
// deadline, and the select returns on ctx even if the relay stalls inside a
// phase the timeout does not cover.
func (s *Sender) deliver(ctx context.Context, host string, port int, msg *mail.Msg) error {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- client.DialAndSendWithContext(ctx, msg) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// normalizeNewlines reduces CRLF and bare CR to LF; the mail encoder then
// writes every line break as CRLF exactly once.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
