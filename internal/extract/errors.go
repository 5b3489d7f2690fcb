package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat indicates a source type outside the supported enum.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrExtractionFailed indicates malformed content. Not retryable.
	ErrExtractionFailed = errors.New("extraction failed")
)

// ExtractionError reports malformed content together with the byte offset
// of the offending input when it could be determined.
type ExtractionError struct {
	Offset int
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at offset %d: %s", e.Offset, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtractionFailed
}
