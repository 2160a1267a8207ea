// Package apperr defines the error taxonomy shared across the engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a target or macro ID is unknown.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed targets or macros.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyActive is returned for overlapping record or play requests.
	ErrAlreadyActive = errors.New("session already active")
	// ErrEmptyMacro is returned when a macro with zero steps is played.
	ErrEmptyMacro = errors.New("macro has no steps")
)

// Validation wraps err as a validation failure so errors.Is(err,
// ErrValidation) holds.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// SimulationError reports a host input-injection failure.
type SimulationError struct {
	Op  string
	Err error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation: %s: %v", e.Op, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// Simulation wraps err as a SimulationError for the named operation.
func Simulation(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SimulationError{Op: op, Err: err}
}

// PersistenceError reports a store read or write failure. Load-time
// failures degrade to an empty collection; write-time failures surface
// to the caller without rolling back in-memory state.
type PersistenceError struct {
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError for the named collection.
func Persistence(collection string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Collection: collection, Err: err}
}
