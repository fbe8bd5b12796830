package content

import (
	"fmt"
	"net/http"
)

// ValidationError marks input that will not get better on retry: a bad URL,
// an oversized page or a page that fails the quality check.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("content validation failed for %s: %s", e.URL, e.Reason)
}

// StatusError is returned for a non-2xx page response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Status, http.StatusText(e.Status))
}

func (e *StatusError) StatusCode() int {
	return e.Status
}
