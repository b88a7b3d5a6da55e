// Package errors provides standardized error handling for the activities API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Roster rule violations
const (
	ErrCodeActivityNotFound   ErrorCode = "ACTIVITY_NOT_FOUND"
	ErrCodeAlreadyRegistered  ErrorCode = "ALREADY_REGISTERED"
	ErrCodeNotRegistered      ErrorCode = "NOT_REGISTERED"
	ErrCodeCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeSeedInvalid        ErrorCode = "SEED_INVALID"
	ErrCodeStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_FAILED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches any StandardError with the same code, so the sentinels below
// work with errors.Is regardless of details.
func (e *StandardError) Is(target error) bool {
	var other *StandardError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrActivityNotFound  = &StandardError{Code: ErrCodeActivityNotFound, Message: "Activity not found"}
	ErrAlreadyRegistered = &StandardError{Code: ErrCodeAlreadyRegistered, Message: "Student is already signed up"}
	ErrNotRegistered     = &StandardError{Code: ErrCodeNotRegistered, Message: "Student is not signed up for this activity"}
	ErrCapacityExceeded  = &StandardError{Code: ErrCodeCapacityExceeded, Message: "Activity is full"}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewActivityNotFoundError creates a non-retryable lookup error.
func NewActivityNotFoundError(activity string) *StandardError {
	return &StandardError{
		Code:      ErrCodeActivityNotFound,
		Message:   ErrActivityNotFound.Message,
		Details:   fmt.Sprintf("activity: %s", activity),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyRegisteredError creates a non-retryable roster error.
func NewAlreadyRegisteredError(activity, email string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyRegistered,
		Message:   ErrAlreadyRegistered.Message,
		Details:   fmt.Sprintf("activity: %s, email: %s", activity, email),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotRegisteredError creates a non-retryable roster error.
func NewNotRegisteredError(activity, email string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotRegistered,
		Message:   ErrNotRegistered.Message,
		Details:   fmt.Sprintf("activity: %s, email: %s", activity, email),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCapacityExceededError creates a non-retryable capacity error.
func NewCapacityExceededError(activity string, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapacityExceeded,
		Message:   ErrCapacityExceeded.Message,
		Details:   fmt.Sprintf("activity: %s, max_participants: %d", activity, limit),
		Retryable: false,
		Metadata:  map[string]interface{}{"maxParticipants": limit},
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSeedInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSeedInvalid,
		Message:   "Seed catalog failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError wraps a backend I/O failure.
func NewStoreUnavailableError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   fmt.Sprintf("Store backend '%s' unavailable", backend),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Failed to send notification",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatus maps an error code to the status the API returns for it.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeActivityNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyRegistered, ErrCodeNotRegistered, ErrCodeCapacityExceeded:
		return http.StatusBadRequest
	case ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Normalize ensures we always have a StandardError. Unknown errors become
// INTERNAL_ERROR with the original text kept in Details for logging only.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal server error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsClientError reports whether the code is a user-triggerable condition.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatus(code)
	return status >= 400 && status < 500
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REGISTERED") || strings.Contains(codeStr, "CAPACITY"):
		return "ROSTER"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STORE"):
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
