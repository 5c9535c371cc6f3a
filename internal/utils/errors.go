package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel values matched by errors.Is against the typed errors below.
var (
	ErrValidation          = errors.New("validation failed")
	ErrEmptyInput          = errors.New("empty input")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrDegenerateColumn    = errors.New("degenerate column")
	ErrSchemaMismatch      = errors.New("schema mismatch")
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// EmptyInputError is returned when a stage is left with no rows to work on,
// either because its input was empty or because it removed every row.
type EmptyInputError struct {
	Stage string
	Rows  int
}

func (e *EmptyInputError) Error() string {
	if e.Rows > 0 {
		return fmt.Sprintf("%s: all %d rows removed", e.Stage, e.Rows)
	}
	return fmt.Sprintf("%s: no rows to process", e.Stage)
}

func (e *EmptyInputError) Is(target error) bool {
	return target == ErrEmptyInput
}

// InsufficientHistoryError reports that the requested window needs more rows
// than the series has.
type InsufficientHistoryError struct {
	Stage     string
	Required  int
	Available int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: need at least %d rows, got %d", e.Stage, e.Required, e.Available)
}

func (e *InsufficientHistoryError) Is(target error) bool {
	return target == ErrInsufficientHistory
}

// DegenerateColumnError reports a zero-range column at scaler fit time.
type DegenerateColumnError struct {
	Column string
	Value  float64
}

func (e *DegenerateColumnError) Error() string {
	return fmt.Sprintf("column %q is constant (%g): min-max scale is undefined", e.Column, e.Value)
}

func (e *DegenerateColumnError) Is(target error) bool {
	return target == ErrDegenerateColumn
}

// SchemaMismatchError reports a missing column or a column layout that does
// not match the one a state was fit on.
type SchemaMismatchError struct {
	Column   string
	Expected []string
	Got      []string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("column %q not found", e.Column)
	}
	return fmt.Sprintf("column layout mismatch: expected [%s], got [%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Got, ", "))
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// ErrorKind returns a short machine-readable name for err, used in API
// responses and log fields. Unknown errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrDegenerateColumn):
		return "degenerate_column"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "internal"
	}
}

// IsClientError reports whether err was caused by the caller's input rather
// than by infrastructure.
func IsClientError(err error) bool {
	kind := ErrorKind(err)
	return kind != "" && kind != "internal"
}
