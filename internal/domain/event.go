package domain

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Cache keys. Each source owns its key; KeyUserMessage is reserved for the
// prompt and is never written to the cache.
const (
	KeyAlerts       = "NWS_alerts"
	KeyForecast     = "NWS_forecast"
	KeyNewsSummary  = "websearch_disaster_news_summary"
	KeySummary      = "summary"
	KeyUserMessage  = "user_message"
	SourceTTL       = 24 * time.Hour
	NewsCategory    = "any critical events"
	ProbeKeyword    = "test"
	FallbackSummary = "Could not retrieve a summary at this time."
	ApologyReply    = "Sorry, an error occurred while processing your request."
	ProbeReply      = "Test successful!"
)

// SourceRecord is the normalized output of one source fetch.
type SourceRecord struct {
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// SummaryResult is the most recent generated summary.
type SummaryResult struct {
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SnapshotEntry is one live cache key and its decoded value.
type SnapshotEntry struct {
	Key   string
	Value string
}

// Snapshot is every live cache entry read at one point in time, ordered by key.
type Snapshot []SnapshotEntry

// Get returns the value stored under key, if present.
func (s Snapshot) Get(key string) (string, bool) {
	for _, e := range s {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// CompletionRequest is a single-shot text-generation call: one system turn
// and one user turn.
type CompletionRequest struct {
	Model     string
	System    string
	User      string
	MaxTokens int // 0 leaves the limit to the backend
}

// Channel identifies an outbound delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// NotificationRequest is a single fire-and-forget delivery.
type NotificationRequest struct {
	Channel    Channel
	Recipients []string
	Body       string
	Subject    string // email only
}

// TriggerMessage is the user-facing content of an inbound SMS.
type TriggerMessage struct {
	From string
	Body string
}

// InboundRequest is a webhook call as seen by the request handler, before
// its signature has been checked.
type InboundRequest struct {
	URL       string
	Form      url.Values
	Signature string
	Headers   http.Header
	RawBody   []byte
}

// Trigger extracts the sender and message body from the form fields.
func (r InboundRequest) Trigger() TriggerMessage {
	return TriggerMessage{
		From: r.Form.Get("From"),
		Body: r.Form.Get("Body"),
	}
}
