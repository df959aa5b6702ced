package apperr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) StatusCode() int { return e.code }

// TestWrap_Classification verifies unknown errors are mapped into the taxonomy.
func TestWrap_Classification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"noRows", fmt.Errorf("lookup: %w", sql.ErrNoRows), IsNotFound},
		{"status404", statusErr{http.StatusNotFound, "missing"}, IsNotFound},
		{"status401", statusErr{http.StatusUnauthorized, "bad jwt"}, IsUnauthorized},
		{"status403", statusErr{http.StatusForbidden, "rls"}, IsUnauthorized},
		{"status409", statusErr{http.StatusConflict, "dup"}, IsConflict},
		{"status422", statusErr{http.StatusUnprocessableEntity, "bad"}, IsValidation},
		{"capacity", fmt.Errorf("enroll: %w", CapacityReached("c1", 2)), IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(tt.err); !tt.check(got) {
				t.Errorf("Wrap(%v) = %T, classification failed", tt.err, got)
			}
		})
	}
}

// TestWrap_NeverReturnsRawError verifies raw errors become ServerError with the verbatim message.
func TestWrap_NeverReturnsRawError(t *testing.T) {
	raw := errors.New("connection reset by peer")
	got := Wrap(raw)
	var se *ServerError
	if !errors.As(got, &se) {
		t.Fatalf("expected *ServerError, got %T", got)
	}
	if se.Message != "connection reset by peer" {
		t.Errorf("expected verbatim message, got %q", se.Message)
	}
	if got == raw {
		t.Error("expected a new error value, got the raw error")
	}
}

// TestWrap_Nil verifies nil passes through.
func TestWrap_Nil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("expected nil")
	}
}

// TestWrap_Context verifies context errors become server errors.
func TestWrap_Context(t *testing.T) {
	if _, ok := Wrap(context.DeadlineExceeded).(*ServerError); !ok {
		t.Error("expected ServerError for deadline")
	}
}

// TestServerError_Fallback verifies the generic fallback message.
func TestServerError_Fallback(t *testing.T) {
	if got := Server("  ").Error(); got != GenericMessage {
		t.Errorf("expected generic message, got %q", got)
	}
}

// TestHTTPStatus verifies status mapping for each taxonomy member.
func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("email", "required"), http.StatusUnprocessableEntity},
		{Unauthorized("no"), http.StatusUnauthorized},
		{NotFound("members", "m1"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{CapacityReached("c1", 1), http.StatusConflict},
		{Server("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// TestNotFoundError_Message verifies the message names the collection item.
func TestNotFoundError_Message(t *testing.T) {
	if got := NotFound("members", "m1").Error(); got != "member m1 not found" {
		t.Errorf("unexpected message %q", got)
	}
}
