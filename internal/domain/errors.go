package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a CacheStore when a key is absent or expired.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured is returned by transports missing required settings.
	ErrNotConfigured = errors.New("not configured")

	// ErrEmptyResponse is returned when an upstream answers with no content.
	ErrEmptyResponse = errors.New("empty response")
)

// ValidationError reports an inbound request that failed authentication or
// could not be read.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "request validation failed: " + e.Reason
}

// SourceFetchError reports a failed refresh of one source. The cached value
// for that source is left as it was.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// SummarizationError reports a failed or empty text-generation call.
type SummarizationError struct {
	Err error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarize: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// DeliveryError reports a notification that could not be sent.
type DeliveryError struct {
	Channel Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
