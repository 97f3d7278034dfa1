package wire

import (
	"fmt"
	"net/http"
)

// ErrorCode enumerates the failure kinds sinkron reports both over the
// websocket protocol and the admin HTTP surface. Grounded on
// original_source/sinkron/src/error.rs's SinkronError.
type ErrorCode string

const (
	CodeBadRequest    ErrorCode = "bad_request"
	CodeAuthFailed    ErrorCode = "auth_failed"
	CodeNotFound      ErrorCode = "not_found"
	CodeForbidden     ErrorCode = "forbidden"
	CodeUnprocessable ErrorCode = "unprocessable"
	CodeInternal      ErrorCode = "internal_error"
)

// HTTPStatus maps an ErrorCode to the status the admin HTTP surface
// responds with, per spec.md §6.3.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeAuthFailed:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is sinkron's error type, used internally as a normal Go error.
// Over the websocket its Code and Message travel in ErrorMessage's code
// and error fields; the admin HTTP surface sends only Message, as {error}.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func AuthFailed(format string, args ...any) *Error {
	return &Error{Code: CodeAuthFailed, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unprocessable(format string, args ...any) *Error {
	return &Error{Code: CodeUnprocessable, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error as a CodeInternal wire error. Callers
// are expected to have already logged err with full detail; the message
// sent over the wire stays generic.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// AsError converts any error into a *Error, defaulting to CodeInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return Internal(err)
}
