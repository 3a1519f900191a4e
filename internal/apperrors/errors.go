package apperrors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is lets sentinel comparisons match wrapped copies carrying a cause,
// e.g. errors.Is(Cause(ErrInvalidMessage, err), ErrInvalidMessage).
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// Cause attaches an underlying error to a sentinel without losing the
// sentinel's code/message identity.
func Cause(sentinel error, cause error) error {
	var app *AppError
	if errors.As(sentinel, &app) {
		return &AppError{Code: app.Code, Message: app.Message, Cause: cause}
	}
	return cause
}

// CodeOf extracts the taxonomy code, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}
