package gemini

import (
	"errors"
	"fmt"
)

// ErrNoCandidates is returned when the service answered but produced no text.
var ErrNoCandidates = errors.New("gemini: no candidates in response")

// APIError is a non-2xx response or an error object in the response body.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: api error %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// DecodeError wraps a response body that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "gemini: decode response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }
