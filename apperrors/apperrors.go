// Package apperrors carries the request-level error taxonomy: an internal
// error for logging plus the HTTP status and public message sent to clients.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindAuth        Kind = "auth_error"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindUpstream    Kind = "upstream_unavailable"
	KindTimeout     Kind = "timeout"
	KindPersistence Kind = "persistence_error"
	KindInternal    Kind = "internal_error"
)

// RequestFailure pairs a developer-level error with the status code and
// public-facing message for the HTTP response.
type RequestFailure struct {
	err  error
	Kind Kind
	Code int
	Msg  string
}

func New(err error, kind Kind, statusCode int, userMsg string) *RequestFailure {
	if userMsg == "" {
		userMsg = http.StatusText(statusCode)
	}
	return &RequestFailure{
		err:  err,
		Kind: kind,
		Code: statusCode,
		Msg:  userMsg,
	}
}

func (rf *RequestFailure) Error() string {
	return fmt.Sprintf("%v - %v", http.StatusText(rf.Code), rf.Msg)
}

func (rf *RequestFailure) Unwrap() error {
	return rf.err
}

// Detail returns the internal error text for dev-mode diagnostics.
func (rf *RequestFailure) Detail() string {
	if rf.err == nil {
		return ""
	}
	return rf.err.Error()
}

func Validation(msg string, err error) *RequestFailure {
	return New(err, KindValidation, http.StatusBadRequest, msg)
}

func Unauthorized(msg string, err error) *RequestFailure {
	return New(err, KindAuth, http.StatusUnauthorized, msg)
}

func Forbidden(msg string, err error) *RequestFailure {
	return New(err, KindForbidden, http.StatusForbidden, msg)
}

func NotFound(msg string, err error) *RequestFailure {
	return New(err, KindNotFound, http.StatusNotFound, msg)
}

// Upstream covers both unreachable and timed-out dependencies; callers with a
// fallback swallow these instead of surfacing them.
func Upstream(msg string, err error) *RequestFailure {
	if msg == "" {
		msg = "service temporarily unavailable"
	}
	return New(err, KindUpstream, http.StatusServiceUnavailable, msg)
}

func Internal(msg string, err error) *RequestFailure {
	return New(err, KindInternal, http.StatusInternalServerError, msg)
}

// AsRequestFailure unwraps err to a RequestFailure, or wraps it as an
// internal error when it isn't one.
func AsRequestFailure(err error) *RequestFailure {
	var rf *RequestFailure
	if errors.As(err, &rf) {
		return rf
	}
	return Internal("internal error", err)
}
