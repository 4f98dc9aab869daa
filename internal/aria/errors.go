package aria

import (
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// AuthError indicates bad credentials or an unreachable auth endpoint.
// The collector aborts the whole cycle when it sees one.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError indicates a failure worth retrying: timeout, connection
// reset, 5xx, or 429 from the upstream.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient upstream error (status %d)", e.Status)
	}
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ClientError indicates a non-retryable 4xx response or an unparseable
// payload. The affected call is skipped and counted, never retried.
type ClientError struct {
	Status   int
	Endpoint string
	Err      error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error on %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("client error on %s (status %d)", e.Endpoint, e.Status)
}

func (e *ClientError) Unwrap() error { return e.Err }

// PartialDataError indicates pagination was interrupted after some pages
// succeeded. The data fetched so far is returned alongside it and must be
// kept by the caller.
type PartialDataError struct {
	Pages int
	Err   error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("pagination interrupted after %d page(s): %v", e.Pages, e.Err)
}

func (e *PartialDataError) Unwrap() error { return e.Err }

// retryable reports whether an error should be retried with backoff.
// Auth and client errors are never retried here; an open circuit breaker
// means the upstream is already known to be down, so retrying is pointless.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
