package mailtool

import (
	"errors"
	"fmt"
)

// The tool contract surfaces failures as a small typed taxonomy so the
// dispatcher can decide what is retryable and what to tell the user.

// AuthError means the account rejected our credentials.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %s", e.Account, e.Message)
}

// TransportError means the account collaborator was unreachable or the
// connection broke mid-operation.
type TransportError struct {
	Account string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Account, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError means the message reference has no backing message.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.Ref)
}

// RateLimitError means the provider throttled us. Reads may be retried
// once; sends never are.
type RateLimitError struct {
	Account string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Account)
}

// IsRetryable reports whether a single retry of an idempotent read is
// worth attempting.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
