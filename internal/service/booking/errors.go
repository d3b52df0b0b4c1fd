package booking

import (
	"fmt"
	"time"
)

// The four outcomes a tool handler branches on: bad input, an admission
// refusal the caller can retry with different parameters, a missing code,
// and internal exhaustion.

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no reservation with confirmation code %q", e.Code)
}

type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Reason
}

// RateLimitedError reports a refused create with the wait the limiter
// suggested; transport turns it into 429 + Retry-After.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}
