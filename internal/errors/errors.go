package errors

import (
	"errors"
	"fmt"
)

// Input and configuration errors. These are reported before anything is mutated.
var (
	// ErrConfiguration indicates a missing or invalid configuration value.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrValidation indicates a malformed device path, partition name, size,
	// key name or key category.
	ErrValidation = errors.New("validation failed")
)

// Resource and state errors.
var (
	// ErrInsufficientResource indicates there is not enough free space.
	ErrInsufficientResource = errors.New("insufficient resources")

	// ErrStateConflict indicates the requested action conflicts with existing state,
	// such as an existing key or an already open container.
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound indicates a key, partition, container or mount point is absent.
	ErrNotFound = errors.New("not found")

	// ErrAborted indicates the operator declined a confirmation.
	ErrAborted = errors.New("operation aborted by user")
)

// Execution errors.
var (
	// ErrIntegrity indicates written key material does not match what was requested.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrExternalTool indicates an external command exited unsuccessfully.
	ErrExternalTool = errors.New("external tool failed")
)

// HintError carries a corrective hint alongside the underlying error.
type HintError struct {
	Err  error
	Hint string
}

func (e *HintError) Error() string { return e.Err.Error() }

func (e *HintError) Unwrap() error { return e.Err }

// WithHint attaches a hint that the command line prints below the error.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &HintError{Err: err, Hint: hint}
}

// Hint returns the innermost hint attached to err, if any.
func Hint(err error) string {
	var h *HintError
	if errors.As(err, &h) {
		return h.Hint
	}
	return ""
}

// Validationf is shorthand for a wrapped ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf is shorthand for a wrapped ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
