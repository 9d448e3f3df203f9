// Package domain defines core types, interfaces, and errors for the catalog.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InvariantError indicates an attempt to violate a write-once or
// lifecycle invariant (e.g., changing a version number after creation).
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return e.Message }

// AmbiguityError indicates a lookup that matched more than one resource.
type AmbiguityError struct {
	Message string
}

func (e *AmbiguityError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvariant creates an InvariantError with a formatted message.
func ErrInvariant(format string, args ...interface{}) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}

// ErrAmbiguous creates an AmbiguityError with a formatted message.
func ErrAmbiguous(format string, args ...interface{}) *AmbiguityError {
	return &AmbiguityError{Message: fmt.Sprintf(format, args...)}
}
