// Package errors defines the console service error taxonomy: sentinel
// errors for the streaming core and a structured APIError for the HTTP
// surface.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the streaming core. Callers discriminate with
// errors.Is; the handlers translate them into protocol frames.
var (
	// ErrServerNotRunning means the server's container does not exist
	// or is stopped. Terminal for that attach attempt.
	ErrServerNotRunning = stderrors.New("server not running")

	// ErrRuntimeUnavailable means the container runtime could not be
	// reached in time. Transient; retried once before surfacing.
	ErrRuntimeUnavailable = stderrors.New("container runtime unavailable")

	// ErrObserverOverflow means an observer's bounded send queue is
	// full. The observer is detached; other observers are unaffected.
	ErrObserverOverflow = stderrors.New("observer send queue overflow")

	// ErrObserverClosed means a frame was pushed to an observer that
	// already closed its connection.
	ErrObserverClosed = stderrors.New("observer closed")

	// ErrSessionClosed means the session reached a terminal state; a
	// fresh session must be created to attach again.
	ErrSessionClosed = stderrors.New("session closed")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation_error"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeInternal       ErrorType = "internal_error"
	ErrorTypeRuntime        ErrorType = "runtime_error"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// APIError represents a structured API error
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(errorType ErrorType, message string, code int, details ...string) *APIError {
	err := &APIError{
		Type:    errorType,
		Message: message,
		Code:    code,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func NewInternalError(message string, details ...string) *APIError {
	return NewAPIError(ErrorTypeInternal, message, http.StatusInternalServerError, details...)
}

func NewInvalidRequestError(message string, details ...string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message, http.StatusBadRequest, details...)
}

// NewServerNotFoundError reports a server whose container is absent.
func NewServerNotFoundError(serverID string) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf("Server not found: %s", serverID), http.StatusNotFound)
}

// NewRuntimeUnavailableError reports a temporarily unreachable runtime.
func NewRuntimeUnavailableError(details ...string) *APIError {
	return NewAPIError(ErrorTypeRuntime, "Container runtime unavailable", http.StatusBadGateway, details...)
}

// WriteErrorResponse writes an error response to the HTTP response writer
func WriteErrorResponse(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)

	if encodeErr := json.NewEncoder(w).Encode(err); encodeErr != nil {
		// Fallback to plain text if JSON encoding fails
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Error: %s", err.Message)
	}
}
