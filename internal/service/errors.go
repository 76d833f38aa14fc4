package service

import (
	"errors"
	"fmt"

	"github.com/squigly/coach-api/internal/service/quota"
)

var (
	// ErrNoVideos means the channel has no uploads to analyze.
	ErrNoVideos = errors.New("channel has no uploads to analyze")

	// ErrChannelMismatch means a reconnect consent was granted for a different channel.
	ErrChannelMismatch = errors.New("authorized channel does not match the channel being reconnected")
)

// UpstreamError is a failure from YouTube, the LLM or the OAuth provider.
// StatusCode is the provider's HTTP status, or 0 for transport failures.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Service == "llm" {
		return fmt.Sprintf("AI analysis failed: %v", e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PersistenceError is a database failure on a step the caller cannot skip.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RateLimitError carries a denied gate decision.
type RateLimitError struct {
	Decision *quota.Decision
}

func (e *RateLimitError) Error() string {
	return e.Decision.Message
}
