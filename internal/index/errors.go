package index

import "errors"

var (
	// ErrUnavailable indicates the backing store is unreachable. Callers
	// decide the retry policy; it is never swallowed here.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector of the wrong size for the
	// collection. A configuration error, not retryable.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
