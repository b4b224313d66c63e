package core

import (
	"fmt"
)

// Error is the canonical error carried across the assistant engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for error wrapping.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrDeviceUnavailable means no microphone exists or access was denied.
	// Fatal to a connect attempt; never retried automatically.
	ErrDeviceUnavailable ErrorType = "device_unavailable"

	// ErrConnect means the remote service rejected the connection
	// (credentials, model name, network). Surfaced before any
	// "connected" state is ever reported.
	ErrConnect ErrorType = "connect_error"

	// ErrTransportClosed means an established session ended unexpectedly.
	// Treated as a normal disconnect by the session manager.
	ErrTransportClosed ErrorType = "transport_closed"

	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAPI            ErrorType = "api_error"
	ErrStorage        ErrorType = "storage_error"
)

// NewDeviceUnavailableError creates a device acquisition error.
func NewDeviceUnavailableError(message string, cause error) *Error {
	return &Error{Type: ErrDeviceUnavailable, Message: message, Cause: cause}
}

// NewConnectError creates a connect rejection error with a human-readable cause.
func NewConnectError(message string, cause error) *Error {
	return &Error{Type: ErrConnect, Message: message, Cause: cause}
}

// NewTransportClosedError creates an unexpected-close error.
func NewTransportClosedError(cause error) *Error {
	return &Error{Type: ErrTransportClosed, Message: "live session closed unexpectedly", Cause: cause}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string, cause error) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Cause: cause}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string, cause error) *Error {
	return &Error{Type: ErrAPI, Message: message, Cause: cause}
}

// NewStorageError wraps a storage backend failure.
func NewStorageError(message string, cause error) *Error {
	return &Error{Type: ErrStorage, Message: message, Cause: cause}
}
