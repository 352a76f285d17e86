// Package apperror defines the error taxonomy shared by the service and HTTP layers.
//
// Every failure a caller can act on is an *AppError wrapping one of the sentinels
// below. Handlers use errors.Is on the sentinel to pick a status code and show
// AppError.Message to the client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrAuth         = errors.New("authentication failed")
	ErrInvalidToken = errors.New("invalid token")
	ErrStore        = errors.New("store failure")
	ErrDelivery     = errors.New("delivery failure")
)

type AppError struct {
	Err     error  // sentinel class
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: collaborator error behind a store/delivery failure
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the class sentinel and the underlying cause, so
// errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on resource.field = value.
func Conflict(resource, field, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s with %s %s already exists", resource, field, value),
		Field:   field,
	}
}

// ConflictMessage is Conflict with a caller-supplied message.
func ConflictMessage(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports bad credentials or a missing/expired session.
// The message must stay generic: never say which credential was wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: message,
	}
}

func InvalidToken(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: message,
		Cause:   cause,
	}
}

// Store wraps a persistence or signing failure. The underlying message is kept
// as the client-facing message.
func Store(cause error) *AppError {
	return &AppError{
		Err:     ErrStore,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// Delivery wraps a mail notifier failure.
func Delivery(cause error) *AppError {
	return &AppError{
		Err:     ErrDelivery,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// Classify returns err unchanged when it already carries an AppError, and
// wraps it as a store failure otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return Store(err)
}
