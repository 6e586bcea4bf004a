package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the entity is not in an eligible state.
	ErrConflict = errors.New("state conflict")
	// ErrPreconditionFailed indicates a business rule blocked the operation.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries the current state so callers can render accurate context.
type ConflictError struct {
	Entity  string
	ID      int64
	Current string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Message)
	}
	return fmt.Sprintf("%s %d is %s: %s", e.Entity, e.ID, e.Current, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict builds a ConflictError.
func Conflict(entity string, id int64, current, message string) error {
	return &ConflictError{Entity: entity, ID: id, Current: current, Message: message}
}

// PreconditionFailedError reports a blocking business rule.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return "precondition failed: " + e.Reason
}

func (e *PreconditionFailedError) Unwrap() error { return ErrPreconditionFailed }

// PreconditionFailed builds a PreconditionFailedError.
func PreconditionFailed(format string, args ...any) error {
	return &PreconditionFailedError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError for a numeric identifier.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprintf("%d", id)}
}

// NotFoundKey builds a NotFoundError for a string key.
func NotFoundKey(entity, key string) error {
	return &NotFoundError{Entity: entity, ID: key}
}

// ErrConcurrentUpdate is wrapped by ConflictError when an optimistic guard lost a race.
var ErrConcurrentUpdate = errors.New("concurrent update, retry")

// ConcurrentUpdate reports a lost optimistic update.
func ConcurrentUpdate(entity string, id int64) error {
	return &ConflictError{Entity: entity, ID: id, Message: ErrConcurrentUpdate.Error()}
}
