package connectors

import (
	"fmt"
	"time"
)

// ThrottleError эндпоинт просит притормозить (429/503 с Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}

// StatusError ответ эндпоинта не 2xx.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("records endpoint %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("records endpoint %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}
