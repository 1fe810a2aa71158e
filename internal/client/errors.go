package client

import (
	"fmt"
	"time"
)

// AuthError means the OAuth token endpoint was unreachable or rejected the
// client-credentials grant. Token acquisition is never retried by callers;
// the cache owns that responsibility.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dalux auth failed: %v", e.Err)
	}
	return fmt.Sprintf("dalux auth failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the Dalux API. The response body is
// captured for diagnostics before the error is raised.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dalux API error (status %d): %s", e.StatusCode, e.Body)
}

// TimeoutError means the call did not complete within the fixed ceiling.
type TimeoutError struct {
	Endpoint string
	Limit    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dalux request to %s timed out after %v", e.Endpoint, e.Limit)
}
