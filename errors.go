package qbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned when a job is scheduled on a closed pool.
	ErrPoolClosed = errors.New("job pool is closed")
	// ErrCircuitOpen is returned when a backend's circuit breaker rejects a job.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrUnknownBackend is returned when a backend name is not registered.
	ErrUnknownBackend = errors.New("unknown backend")
)

/*
ValidationError reports malformed input: a non-positive qubit count, a qubit
index out of range, a controlled-NOT with control == target, a non-positive
shot count, or a malformed histogram.
*/
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

/*
ResourceError reports a state vector that would not fit within the memory
ceiling, or a qubit count above the configured maximum.
*/
type ResourceError struct {
	Qubits   int
	Required uint64
	Ceiling  uint64
}

func (e *ResourceError) Error() string {
	if e.Required == 0 {
		return fmt.Sprintf("state vector for %d qubits exceeds the qubit limit", e.Qubits)
	}

	return fmt.Sprintf(
		"state vector for %d qubits needs %d bytes, ceiling is %d bytes",
		e.Qubits, e.Required, e.Ceiling,
	)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsResource reports whether err is, or wraps, a *ResourceError.
func IsResource(err error) bool {
	var r *ResourceError
	return errors.As(err, &r)
}

// isPermanent marks errors that retrying cannot fix.
func isPermanent(err error) bool {
	return IsValidation(err) || IsResource(err)
}
