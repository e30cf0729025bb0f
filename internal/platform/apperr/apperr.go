// Package apperr defines the failure taxonomy shared by the admin and booking
// apps and the translation of those failures into user-visible messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrNotFound marks an expected absence (for example, no session recorded
// yet). Callers branch on it; it is never retried.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized marks a 401 from the upstream API. The credentials that
// produced it have already been invalidated when it is returned.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError is a field-level failure caught before transmission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, k := range e.fieldNames() {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Summary joins the field messages in field order for display.
func (e *ValidationError) Summary() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, k := range e.fieldNames() {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, ", ")
}

func (e *ValidationError) fieldNames() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RequestRejected carries a structured error message returned by the server.
// The message is shown to the user verbatim.
type RequestRejected struct {
	Status  int
	Message string
}

func (e *RequestRejected) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected with status %d", e.Status)
	}
	return fmt.Sprintf("request rejected with status %d: %s", e.Status, e.Message)
}

// TransportFailure is a network error or a server failure without a
// structured message.
type TransportFailure struct {
	Status int
	Err    error
}

func (e *TransportFailure) Error() string {
	if e.Err != nil {
		return "transport failure: " + e.Err.Error()
	}
	return fmt.Sprintf("transport failure: upstream status %d", e.Status)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an expected absence.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized reports whether err ended the admin session.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// UserMessage picks the text shown for err: the server's message when there
// is one, the error text for local failures, otherwise fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var rej *RequestRejected
	if errors.As(err, &rej) {
		if rej.Message != "" {
			return rej.Message
		}
		return fallback
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		if s := verr.Summary(); s != "" {
			return s
		}
		return fallback
	}
	var tf *TransportFailure
	if errors.As(err, &tf) {
		return fallback
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// Status maps err to the HTTP status the apps answer with.
func Status(err error) int {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var rej *RequestRejected
	if errors.As(err, &rej) {
		if rej.Status >= 400 && rej.Status < 500 {
			return rej.Status
		}
		return http.StatusBadGateway
	}
	var tf *TransportFailure
	if errors.As(err, &tf) {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload of both apps.
type Body struct {
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// HTTP converts err into an echo error whose body carries the user message.
func HTTP(err error, fallback string) *echo.HTTPError {
	body := Body{Message: UserMessage(err, fallback)}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if errors.Is(err, ErrUnauthorized) {
		body.Redirect = "/login"
	}
	he := echo.NewHTTPError(Status(err), body)
	he.Internal = err
	return he
}
