// Package apperr defines the error taxonomy every boundary call returns.
// Adapters and provider SDK errors are re-wrapped into these types before they
// reach handlers, so callers only ever switch on the types below.
package apperr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// GenericMessage is shown when a server failure carries no usable text.
const GenericMessage = "Something went wrong. Please try again."

// ValidationError reports a missing or malformed field.
// Recoverable by re-prompting the same form.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnauthorizedError reports missing or invalid credentials or token.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "not signed in"
	}
	return e.Message
}

// NotFoundError reports a stale id reference.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Collection != "" && e.ID != "":
		return fmt.Sprintf("%s %s not found", strings.TrimSuffix(e.Collection, "s"), e.ID)
	case e.ID != "":
		return fmt.Sprintf("record %s not found", e.ID)
	default:
		return "record not found"
	}
}

// ConflictError reports a business-rule violation. Not retried automatically.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// CapacityReachedError is the conflict raised when a class is full.
type CapacityReachedError struct {
	ClassID  string
	Capacity int
}

func (e *CapacityReachedError) Error() string {
	return fmt.Sprintf("class is full (capacity %d)", e.Capacity)
}

// ServerError is an unexpected backend failure, surfaced verbatim.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return GenericMessage
	}
	return e.Message
}

// Validation returns a ValidationError for field.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Unauthorized returns an UnauthorizedError.
func Unauthorized(message string) error {
	return &UnauthorizedError{Message: message}
}

// NotFound returns a NotFoundError.
func NotFound(collection, id string) error {
	return &NotFoundError{Collection: collection, ID: id}
}

// Conflict returns a ConflictError.
func Conflict(message string) error {
	return &ConflictError{Message: message}
}

// CapacityReached returns a CapacityReachedError.
func CapacityReached(classID string, capacity int) error {
	return &CapacityReachedError{ClassID: classID, Capacity: capacity}
}

// Server returns a ServerError.
func Server(message string) error {
	return &ServerError{Message: message}
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Wrap classifies err into the taxonomy.
// PRE: none
// POST: returns nil for nil, the same value for taxonomy errors, and a new
// taxonomy value (never the raw error) for anything else
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return unwrapTaxonomy(err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServerError{Message: "the request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &ServerError{Message: "the request was cancelled"}
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return fromStatus(sc.StatusCode(), err.Error())
	}
	return &ServerError{Message: err.Error()}
}

func fromStatus(code int, message string) error {
	switch {
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return &ValidationError{Message: message}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &UnauthorizedError{Message: message}
	case code == http.StatusNotFound:
		return &NotFoundError{}
	case code == http.StatusConflict:
		return &ConflictError{Message: message}
	default:
		return &ServerError{Message: message}
	}
}

// IsTaxonomy reports whether err already belongs to the taxonomy.
func IsTaxonomy(err error) bool {
	return unwrapTaxonomy(err) != nil
}

func unwrapTaxonomy(err error) error {
	var (
		v  *ValidationError
		u  *UnauthorizedError
		nf *NotFoundError
		cr *CapacityReachedError
		c  *ConflictError
		s  *ServerError
	)
	switch {
	case errors.As(err, &v):
		return v
	case errors.As(err, &u):
		return u
	case errors.As(err, &nf):
		return nf
	case errors.As(err, &cr):
		return cr
	case errors.As(err, &c):
		return c
	case errors.As(err, &s):
		return s
	}
	return nil
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError or CapacityReachedError.
func IsConflict(err error) bool {
	var c *ConflictError
	var cr *CapacityReachedError
	return errors.As(err, &c) || errors.As(err, &cr)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var u *UnauthorizedError
	return errors.As(err, &u)
}

// Message returns the user-visible text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return Wrap(err).Error()
}

// HTTPStatus maps err to the status code the local HTTP surface responds with.
func HTTPStatus(err error) int {
	switch Wrap(err).(type) {
	case *ValidationError:
		return http.StatusUnprocessableEntity
	case *UnauthorizedError:
		return http.StatusUnauthorized
	case *NotFoundError:
		return http.StatusNotFound
	case *ConflictError, *CapacityReachedError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
