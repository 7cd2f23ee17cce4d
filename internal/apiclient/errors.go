package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned to requests whose recovery depended on a
	// refresh that failed. The session has been cleared.
	ErrSessionExpired = errors.New("apiclient: session expired")

	ErrUnauthorized = errors.New("apiclient: unauthorized")

	// ErrAccessRestricted marks a 403: the principal is authenticated but not allowed.
	ErrAccessRestricted = errors.New("apiclient: access restricted")

	// ErrNotReplayable is returned when a request must be replayed after a
	// refresh but its body cannot be re-read.
	ErrNotReplayable = errors.New("apiclient: request body cannot be replayed")

	ErrNoRefreshToken   = errors.New("apiclient: no refresh token")
	ErrUnknownWorkspace = errors.New("apiclient: workspace is not among the user's memberships")
)

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Is lets callers match on the status class with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrAccessRestricted:
		return e.Status == http.StatusForbidden
	}
	return false
}
