package errkind

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure for status-code mapping and
// the error_type field of the JSON error envelope.
type Kind string

const (
	BadRequest Kind = "bad_request"
	Upstream   Kind = "upstream_error"
	Protocol   Kind = "protocol_error"
	Internal   Kind = "internal_error"
)

// Error is a typed request failure carrying the correlation id it
// occurred under. Services return *Error; handlers map it to HTTP.
type Error struct {
	Kind      Kind
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the kind to a protocol status code. BadRequest is
// the only caller fault; everything else surfaces as a server error.
func (e *Error) HTTPStatus() int {
	if e.Kind == BadRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func New(kind Kind, reqID, message string) *Error {
	return &Error{Kind: kind, Message: message, RequestID: reqID}
}

func Wrap(kind Kind, reqID, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, RequestID: reqID, Cause: cause}
}

// From returns err as *Error, wrapping unclassified errors as Internal.
func From(err error, reqID string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Message: err.Error(), RequestID: reqID, Cause: err}
}
