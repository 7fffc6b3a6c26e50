// Package apierr carries the HTTP status a pipeline failure should be
// reported with, so stages deep in the request can decide the response
// without knowing about http.ResponseWriter.
package apierr

import (
	"errors"
	"net/http"
)

// Kind groups failures by how the request should end.
type Kind int

const (
	KindClient Kind = iota
	KindNotFound
	KindServer
)

// Error is a client-facing failure. Message is safe to return to the
// submitter; Err, when set, is the underlying cause kept for logs.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(status int, msg string, cause error) *Error {
	kind := KindClient
	switch {
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= http.StatusInternalServerError:
		kind = KindServer
	}
	return &Error{Kind: kind, Status: status, Message: msg, Err: cause}
}

func BadRequest(msg string) *Error       { return newError(http.StatusBadRequest, msg, nil) }
func Unauthorized(msg string) *Error     { return newError(http.StatusUnauthorized, msg, nil) }
func Forbidden(msg string) *Error        { return newError(http.StatusForbidden, msg, nil) }
func NotFound(msg string) *Error         { return newError(http.StatusNotFound, msg, nil) }
func MethodNotAllowed(msg string) *Error { return newError(http.StatusMethodNotAllowed, msg, nil) }
func TooLarge(msg string) *Error         { return newError(http.StatusRequestEntityTooLarge, msg, nil) }

// Internal wraps cause behind a generic message.
func Internal(msg string, cause error) *Error {
	return newError(http.StatusInternalServerError, msg, cause)
}

// StatusOf returns the status carried by err, or 500 for any other error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
