package audit

import "errors"

var (
	// ErrInvalidMessage is returned when a delivery body is not a valid lifecycle notification
	ErrInvalidMessage = errors.New("invalid audit message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
