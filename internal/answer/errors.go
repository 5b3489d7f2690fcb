package answer

import "errors"

// ErrProvider indicates the generation provider failed after retrieval
// succeeded. Callers still receive the retrieved sources alongside it.
var ErrProvider = errors.New("generation provider failed")
