// Package pipeline implements the aggregate → summarize → deliver workflow
// behind each inbound SMS, and the request handler that sequences it.
package pipeline

import (
	"context"
	"net/url"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

// Source fetches one upstream feed. The trigger message is passed through for
// sources that tailor their query to it; structured feeds ignore it.
type Source interface {
	Name() string
	Fetch(ctx context.Context, trigger string) (domain.SourceRecord, error)
}

// Completer is a single-shot text-generation backend.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// SMSSender delivers a text message and returns the provider's message id.
type SMSSender interface {
	Send(ctx context.Context, body, to string) (string, error)
}

// EmailSender delivers a plain-text e-mail to each recipient.
type EmailSender interface {
	Send(ctx context.Context, body, subject string, recipients []string) error
}

// SignatureValidator authenticates an inbound webhook.
type SignatureValidator interface {
	Validate(fullURL string, params url.Values, signature string) bool
}

// Refresher refreshes the cache from every source. It never fails.
type Refresher interface {
	Refresh(ctx context.Context, trigger string)
}

// SummaryProducer turns the cache snapshot into a reply. The returned text is
// never empty, even when err is non-nil.
type SummaryProducer interface {
	Summarize(ctx context.Context, trigger string) (string, error)
}

// Deliverer sends user replies and operator reports, best-effort.
type Deliverer interface {
	DeliverToUser(ctx context.Context, text, recipient string)
	DeliverToOperator(ctx context.Context, text, subject string, recipients ...string)
}
