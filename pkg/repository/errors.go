package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors forming the operation error taxonomy. Adapters wrap these
// with path and operation context, so callers test with errors.Is.
var (
	// ErrNotFound means the path does not exist. Several call sites treat
	// this as a valid branch ("file doesn't exist yet"), not a failure.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the optimistic-concurrency check failed: the
	// remote SHA no longer matches the caller's, or a create targeted an
	// existing path. Callers must reload before retrying; the adapter
	// never retries with a fresh SHA on its own.
	ErrConflict = errors.New("conflict")

	// ErrAuthInvalid means the credentials were rejected. Not locally
	// recoverable; the Config.OnAuthInvalid callback fires alongside it.
	ErrAuthInvalid = errors.New("authentication invalid")
)

// APIError is returned for transport failures and unexpected non-2xx
// statuses. For the well-known statuses it unwraps to the matching sentinel
// so errors.Is(err, ErrNotFound) and friends keep working.
type APIError struct {
	StatusCode int
	Message    string
	sentinel   error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

// statusError maps an HTTP status and response body to the taxonomy.
// Returns nil for 2xx statuses.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	e := &APIError{StatusCode: status, Message: extractMessage(body)}
	switch status {
	case http.StatusUnauthorized:
		e.sentinel = ErrAuthInvalid
	case http.StatusNotFound:
		e.sentinel = ErrNotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// Backends disagree on "already exists" vs "sha mismatch" codes;
		// both collapse to the same caller-visible condition.
		e.sentinel = ErrConflict
	}
	return e
}

// extractMessage pulls a human-readable message out of an error response
// body, best effort. Every supported backend uses a {"message": ...} shape.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
