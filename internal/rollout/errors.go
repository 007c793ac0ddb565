package rollout

import (
	"errors"
	"fmt"
)

// ErrClientCredentialsNotConfigured means neither the session nor the
// environment carries a Rollout client id/secret pair. Routes surface it as 401.
var ErrClientCredentialsNotConfigured = errors.New("rollout client credentials are not configured for this session")

// APIError is a non-2xx response from the Rollout API. Callers branch on
// Status (404 handling, 422 validation parsing), so every upstream failure
// must carry it.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rollout api request failed with status %d", e.Status)
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// BodyOf returns the raw upstream response body carried by err, or "".
func BodyOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body
	}
	return ""
}
