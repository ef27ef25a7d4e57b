package plugin

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used by the plugin. The host treats the code as an opaque
// classifier; the status code drives its HTTP response.
const (
	CodeInvalidRequest = "invalid-request"
	CodeConfiguration  = "configuration"
	CodeModeration     = "moderation-flagged"
	CodeUnsupported    = "unsupported-model"
	CodeUpstream       = "upstream"
	CodeStorage        = "storage"
)

// Error is the host platform's generic error envelope. All failures the
// plugin reports to the host are carried in this shape.
type Error struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a platform error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusFor(code)}
}

// Errorf builds a platform error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// AsError wraps err into a platform error unless it already is one.
func AsError(code string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{
		Code:       code,
		Message:    err.Error(),
		StatusCode: statusFor(code),
		Err:        err,
	}
}

func statusFor(code string) int {
	switch code {
	case CodeInvalidRequest, CodeConfiguration, CodeUnsupported:
		return http.StatusBadRequest
	case CodeModeration:
		return http.StatusUnprocessableEntity
	case CodeStorage, CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
