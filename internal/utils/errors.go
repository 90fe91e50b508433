package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Precondition errors, raised before any state change
	ErrInvalidInput = "INVALID_INPUT"
	ErrUnauthorized = "UNAUTHORIZED" // no resolved current user
	ErrNotFound     = "NOT_FOUND"

	// Remote errors, the optimistic change is rolled back
	ErrNetwork = "NETWORK_ERROR"
	ErrServer  = "SERVER_ERROR"
	ErrDecode  = "DECODE_ERROR"

	// Rendering errors
	ErrDepthExceeded = "DEPTH_EXCEEDED"

	// Session errors
	ErrStaleSession = "STALE_SESSION"
	ErrActorTimeout = "ACTOR_TIMEOUT"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: "Invalid input: " + reason,
	}
}

func NewAuthRequiredError(action string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Sign in required to " + action,
	}
}

func NewNotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
	}
}

func NewStaleSessionError(trendID string) *AppError {
	return &AppError{
		Code:    ErrStaleSession,
		Message: "Session closed for trend " + trendID,
	}
}

func NewActorTimeoutError(actorName string, origin error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  origin,
	}
}

// IsErrorCode reports whether err, or anything it wraps, is an AppError with code.
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRemoteError reports whether err came from the backend round trip, which
// means an optimistic change has to be rolled back.
func IsRemoteError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrNetwork ||
			appErr.Code == ErrServer ||
			appErr.Code == ErrDecode
	}
	return false
}

// CodeFromHTTPStatus converts a backend HTTP status to an error code.
func CodeFromHTTPStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrServer
	}
}

// AsAppError returns err as an AppError, wrapping foreign errors as server errors.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(ErrServer, "Unexpected error", err)
}
