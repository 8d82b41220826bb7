package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	twiliogo "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/couchcryptid/disaster-sms/internal/domain"
)

const defaultBaseURL = "https://api.twilio.com"

// Client sends SMS through the Twilio Messages API. It implements
// pipeline.SMSSender.
type Client struct {
	accountSID string
	authToken  string
	from       string
	rest       *twiliogo.RestClient
	logger     *slog.Logger
}

// NewClient creates a Twilio messaging client. baseURL other than the public
// API host redirects every request there (local fakes, test servers).
func NewClient(accountSID, authToken, from, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: timeout}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && baseURL != defaultBaseURL {
		if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
			httpClient.Transport = &rewriteHost{base: u, next: http.DefaultTransport}
		}
	}

	base := &client.Client{
		Credentials: client.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)

	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		rest:       twiliogo.NewRestClientWithParams(twiliogo.ClientParams{Client: base}),
		logger:     logger,
	}
}

func (c *Client) configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// Send queues body for delivery to the given number and returns the message
// SID. The SDK call is bounded by the HTTP client timeout; Send itself also
// returns as soon as ctx is done.
func (c *Client) Send(ctx context.Context, body, to string) (string, error) {
	if !c.configured() {
		return "", fmt.Errorf("twilio credentials: %w", domain.ErrNotConfigured)
	}
	if to == "" {
		return "", errors.New("twilio: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	type result struct {
		msg *openapi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.rest.Api.CreateMessage(params)
		done <- result{msg: msg, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio send: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return "", fmt.Errorf("twilio send: %w", res.err)
	}

	var sid string
	if res.msg != nil && res.msg.Sid != nil {
		sid = *res.msg.Sid
	}
	c.logger.Debug("twilio message queued", "sid", sid)
	return sid, nil
}

// rewriteHost sends every request to base, keeping path and query.
type rewriteHost struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.Host = t.base.Host
	return t.next.RoundTrip(r)
}
