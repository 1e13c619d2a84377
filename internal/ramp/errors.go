package ramp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig is returned before a run starts when the stage
	// sequence or controller settings are malformed.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrIterationFailure marks an outcome whose scenario returned an error
	// or panicked. It is recorded, never propagated.
	ErrIterationFailure = errors.New("iteration failure")

	// ErrWorkerSpawn is recorded when the pool cannot start a new worker.
	ErrWorkerSpawn = errors.New("worker spawn failure")

	// ErrAlreadyStarted is returned by Run on a controller that already ran.
	ErrAlreadyStarted = errors.New("controller already started")
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap lets callers match any validation error with errors.Is(err, ErrInvalidConfig).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap returns ErrInvalidConfig so the whole collection matches it.
func (e *ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// IterationError wraps the cause of a failed iteration.
type IterationError struct {
	WorkerID  int
	Iteration int64
	Cause     error
	Panic     any
}

func (e *IterationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("worker %d iteration %d panicked: %v", e.WorkerID, e.Iteration, e.Panic)
	}
	return fmt.Sprintf("worker %d iteration %d: %v", e.WorkerID, e.Iteration, e.Cause)
}

// Is reports ErrIterationFailure so callers need not know the concrete type.
func (e *IterationError) Is(target error) bool {
	return target == ErrIterationFailure
}

func (e *IterationError) Unwrap() error {
	return e.Cause
}
