package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeIncomplete indicates a document failed its completeness
	// check at finalize time
	ErrorTypeIncomplete ErrorType = "INCOMPLETE"

	// ErrorTypeInvalidState indicates a lifecycle transition that is not
	// permitted from the document's current status
	ErrorTypeInvalidState ErrorType = "INVALID_STATE"

	// ErrorTypeLockConflict indicates the document is locked by another
	// actor and the lock is not stale
	ErrorTypeLockConflict ErrorType = "LOCK_CONFLICT"

	// ErrorTypeConcurrencyConflict indicates the caller's last-seen
	// version no longer matches the stored version
	ErrorTypeConcurrencyConflict ErrorType = "CONCURRENCY_CONFLICT"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewIncompleteError creates a new completeness-check error
func NewIncompleteError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeIncomplete,
		Message: message,
	}
}

// NewInvalidStateError creates a new invalid state transition error
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidState,
		Message: message,
	}
}

// NewLockConflictError creates a new lock conflict error
func NewLockConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeLockConflict,
		Message: message,
	}
}

// NewConcurrencyConflictError creates a new concurrency conflict error
func NewConcurrencyConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConcurrencyConflict,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsInvalidState reports whether err is an invalid state transition error
func IsInvalidState(err error) bool {
	return IsType(err, ErrorTypeInvalidState)
}

// IsIncomplete reports whether err is a completeness-check error
func IsIncomplete(err error) bool {
	return IsType(err, ErrorTypeIncomplete)
}

// IsLockConflict reports whether err is a lock conflict error
func IsLockConflict(err error) bool {
	return IsType(err, ErrorTypeLockConflict)
}

// IsConcurrencyConflict reports whether err is a concurrency conflict error
func IsConcurrencyConflict(err error) bool {
	return IsType(err, ErrorTypeConcurrencyConflict)
}
