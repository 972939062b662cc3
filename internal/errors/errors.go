package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a clipnest error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"  // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrBusy           ErrorCode = "BUSY"            // 409
	ErrUnavailable    ErrorCode = "UNAVAILABLE"     // 503
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// ClipError represents a structured error with code, status, and details.
type ClipError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ClipError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ClipError {
	return &ClipError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidConfig creates a 400 error for a rejected configuration change.
// The caller's prior configuration is left untouched.
func NewInvalidConfig(key string, msg string) *ClipError {
	return &ClipError{
		Code:    ErrInvalidConfig,
		Status:  400,
		Message: fmt.Sprintf("invalid %s: %s", key, msg),
		Details: map[string]any{"key": key},
	}
}

// NewNotFound creates a 404 error for when a history entry cannot be found.
func NewNotFound(id string) *ClipError {
	return &ClipError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("history entry not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *ClipError {
	return &ClipError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewBusy creates a 409 error when another process owns the history.
func NewBusy(baseDir string) *ClipError {
	return &ClipError{
		Code:    ErrBusy,
		Status:  409,
		Message: "another clipnest watcher or server owns this history; use its MCP tools or stop it first",
		Details: map[string]any{"base_dir": baseDir},
	}
}

// NewUnavailable creates a 503 error when a system capability (clipboard,
// window introspection) cannot serve the request.
func NewUnavailable(capability string, err error) *ClipError {
	msg := capability + " unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s unavailable: %v", capability, err)
	}
	return &ClipError{
		Code:    ErrUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"capability": capability},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ClipError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ClipError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a ClipError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *ClipError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}
