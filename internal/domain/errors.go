package domain

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping (HTTP status, gateway error event).
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

// Error is the application error carried from services to transports.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports code equality so that errors.Is(err, ErrNotFound) matches any NOT_FOUND error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for the application.
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrRateLimited  = &Error{Code: CodeRateLimited, Message: "you are sending messages too fast, please slow down"}
	ErrUnauthorized = &Error{Code: CodeUnauthenticated, Message: "unauthorized access"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "resource already exists"}
)

func NotFound(msg string) error { return &Error{Code: CodeNotFound, Message: msg} }

func Forbidden(msg string) error { return &Error{Code: CodeForbidden, Message: msg} }

func InvalidState(msg string) error { return &Error{Code: CodeInvalidState, Message: msg} }

func BadRequest(msg string) error { return &Error{Code: CodeBadRequest, Message: msg} }

func RateLimited(msg string) error { return &Error{Code: CodeRateLimited, Message: msg} }

func Unauthenticated(msg string) error { return &Error{Code: CodeUnauthenticated, Message: msg} }

func Wrap(code Code, msg string, cause error) error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// PublicMessage returns a message safe to show to clients. Errors that did not
// originate from the domain get a generic text so driver details never leak.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "request could not be completed, please retry"
}
