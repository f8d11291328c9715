package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for resolution and key collisions.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ValidationError rejects a malformed request before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError surfaces a failed durable write. Never swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DispatchError records that one or more targets failed actuation. The firing
// itself still completes and is recorded; this is not fatal to the task.
type DispatchError struct {
	TaskID string
	Failed int
	Total  int
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("task %s: %d/%d targets failed", e.TaskID, e.Failed, e.Total)
}

// Error numbers surfaced in the response envelope.
const (
	ErrNoValidation = "1001"
	ErrNoNotFound   = "1002"
	ErrNoConflict   = "1003"
	ErrNoDispatch   = "1004"
	ErrNoStorage    = "1005"
	ErrNoInternal   = "1999"
)

// ErrNo maps an error to its stable envelope number.
func ErrNo(err error) string {
	var ve *ValidationError
	var se *StorageError
	var de *DispatchError
	switch {
	case errors.As(err, &ve):
		return ErrNoValidation
	case errors.Is(err, ErrNotFound):
		return ErrNoNotFound
	case errors.Is(err, ErrConflict):
		return ErrNoConflict
	case errors.As(err, &de):
		return ErrNoDispatch
	case errors.As(err, &se):
		return ErrNoStorage
	default:
		return ErrNoInternal
	}
}
