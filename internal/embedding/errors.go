package embedding

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"
)

var (
	// ErrUnavailable indicates the embedding provider could not be
	// reached or kept failing after retries.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates the provider returned vectors of a
	// different size than the index expects. Not retryable.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// transientError marks an error as retryable regardless of its type.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so the embedder retries it.
func MarkTransient(err error) error {
	return &transientError{err: err}
}

// isTransient reports whether a provider error is worth retrying: rate
// limits and server-side failures are, everything else is not.
func isTransient(err error) bool {
	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
