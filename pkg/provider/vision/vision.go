// Package vision defines the inference boundary of the visual query engine:
// a [Querier] answers one natural-language question about one encoded image.
//
// Implementations live in subpackages (moondream, openai) plus a mock for
// tests. The error taxonomy here lets callers distinguish rate-limit
// exhaustion, hard status failures, and transport failures so each can be
// surfaced with its own message.
package vision

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited is returned after a rate-limited request has exhausted its
// retry budget. Callers surface this with a "try again in a moment" message.
var ErrRateLimited = errors.New("vision: rate limit exceeded, try again in a moment")

// RequestError is a non-success, non-rate-limit response from the endpoint.
type RequestError struct {
	// Status is the HTTP status code of the failed response.
	Status int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("vision: endpoint returned status %d", e.Status)
}

// NetworkError is a transport-level failure (DNS, connection refused,
// timeout). Network errors are not retried; only rate-limit responses are.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "vision: network error, check your connection"
}

// Unwrap exposes the underlying transport error for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Querier answers a single question about a single image.
type Querier interface {
	// Query sends one (image, question) pair and returns the free-form textual
	// answer, which may be empty. image is the value transmitted in the
	// request's image_url field — a data URI or a plain URL.
	Query(ctx context.Context, image, question string) (string, error)
}
