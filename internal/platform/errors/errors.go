// Package errors provides structured errors mapped to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an error for logging and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeRateLimited indicates a client exceeded a request or connection rate (HTTP 429)
	TypeRateLimited ErrorType = "rate_limited"
	// TypeUnavailable indicates a temporarily exhausted resource (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates a failing backing service (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

// InvalidPayloadError creates a validation error that keeps the decode failure as cause.
func InvalidPayloadError(message string, cause error) *Error {
	return newError(TypeValidation, message, cause)
}

// RateLimitedError creates a rate-limited error (HTTP 429).
func RateLimitedError(message string) *Error {
	return newError(TypeRateLimited, message, nil)
}

// UnavailableError creates a service-unavailable error (HTTP 503).
func UnavailableError(message string) *Error {
	return newError(TypeUnavailable, message, nil)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// ExternalError creates a new backing-service error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithField adds a context field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
