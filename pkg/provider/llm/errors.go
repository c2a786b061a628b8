package llm

import (
	"errors"
	"fmt"
)

// ErrDecoding is returned when a backend reply is malformed or carries no
// choices.
var ErrDecoding = errors.New("llm: cannot decode response")

// APIError is returned when the backend answers with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request later might succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
