package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConnTimeout  = errors.New("database open timed out")
	ErrOpenFailed   = errors.New("database open failed")
	ErrCorruption   = errors.New("database corruption detected")
	ErrTxTimeout    = errors.New("transaction timed out")
	ErrTxFailed     = errors.New("transaction failed and was rolled back")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError signals a business rule violation detected before any write
// was attempted. It satisfies errors.Is(err, ErrInvalidInput).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DatabaseError is a classified engine failure. Code is parsed best-effort
// from the engine message, Statement is a truncated copy of the offending
// SQL and Params are the bound arguments.
type DatabaseError struct {
	Code      string
	Statement string
	Params    []any
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("database error [%s]: %v (stmt: %s)", e.Code, e.Err, e.Statement)
	}
	return fmt.Sprintf("database error: %v (stmt: %s)", e.Err, e.Statement)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
