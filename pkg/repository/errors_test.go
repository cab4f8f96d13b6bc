package repository

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestStatusError_SentinelMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthInvalid},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusUnprocessableEntity, ErrConflict},
	}
	for _, tt := range tests {
		err := statusError(tt.status, nil)
		if !errors.Is(err, tt.want) {
			t.Errorf("statusError(%d) = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestStatusError_SuccessIsNil(t *testing.T) {
	for _, status := range []int{200, 201, 204} {
		if err := statusError(status, nil); err != nil {
			t.Errorf("statusError(%d) = %v, want nil", status, err)
		}
	}
}

func TestStatusError_UnmappedStatusHasNoSentinel(t *testing.T) {
	err := statusError(http.StatusInternalServerError, nil)
	for _, sentinel := range []error{ErrNotFound, ErrConflict, ErrAuthInvalid} {
		if errors.Is(err, sentinel) {
			t.Errorf("A 500 must not unwrap to %v", sentinel)
		}
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("Expected an APIError carrying the status, got %v", err)
	}
}

func TestStatusError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("failed to update file: %w", statusError(409, nil))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("The sentinel must survive wrapping: %v", err)
	}
}

func TestExtractMessage(t *testing.T) {
	if got := extractMessage([]byte(`{"message": "file already exists"}`)); got != "file already exists" {
		t.Errorf("Unexpected message: %q", got)
	}
	if got := extractMessage([]byte("plain text error")); got != "plain text error" {
		t.Errorf("Non-JSON bodies pass through: %q", got)
	}
	if got := extractMessage(nil); got != "" {
		t.Errorf("An empty body yields an empty message: %q", got)
	}

	long := strings.Repeat("x", 500)
	if got := extractMessage([]byte(long)); len(got) != 200 {
		t.Errorf("Oversized bodies are capped, got %d bytes", len(got))
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{StatusCode: 409, Message: "sha mismatch", sentinel: ErrConflict}
	if !strings.Contains(err.Error(), "sha mismatch") || !strings.Contains(err.Error(), "409") {
		t.Errorf("Unexpected error string: %v", err)
	}
}
