package vrc

import (
	"errors"
	"fmt"
)

// ErrNotFound signals a 404 from the API.
//
// For membership and pending-invite lookups this is the expected
// "not a member / no invite" answer, not a failure.
var ErrNotFound = errors.New("not found")

// APIError is any non-404 error response from the VRChat API.
type APIError struct {
	Status int
	Reason string
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("vrchat api: %d %s: %s", e.Status, e.Reason, e.Body)
	}
	return fmt.Sprintf("vrchat api: %d %s", e.Status, e.Reason)
}

// IsNotFound reports whether err is the expected 404 signal.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
