// Package qerr defines the error taxonomy shared by the query engine.
//
// All errors raised during query assembly fall into one of three categories:
//
//   - ValidationError: malformed filter/field/group-by/order-by syntax,
//     invalid operators, invalid aliases, unsupported SQL functions.
//   - PermissionError: insufficient role, field, or document permission.
//   - TypeError: arguments of the wrong Go type (non-integer limit/offset).
//
// Validation happens eagerly during assembly, never at execution time.
// Error messages include the offending sub-structure so callers can
// diagnose which part of a nested filter or field list was rejected.
package qerr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed query input detected at parse time.
type ValidationError struct {
	// Message is a human-readable description.
	Message string

	// Detail holds the offending sub-structure, if any.
	Detail any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Detail)
	}
	return e.Message
}

// Validationf creates a ValidationError with a formatted message.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationDetail creates a ValidationError carrying the offending value.
func ValidationDetail(detail any, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Detail: detail}
}

// PermissionError reports insufficient role, field, or document permission.
// Doctype is always set; Fieldname is set for field-level denials.
type PermissionError struct {
	Doctype   string
	Fieldname string
	User      string
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Fieldname != "" {
		return fmt.Sprintf("no permission to access field %s.%s", e.Doctype, e.Fieldname)
	}
	return fmt.Sprintf("insufficient permission for %s", e.Doctype)
}

// TypeError reports an argument of the wrong type, such as a
// non-integer limit or offset.
type TypeError struct {
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return e.Message
}

// Typef creates a TypeError with a formatted message.
func Typef(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation returns true if the error is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermission returns true if the error is (or wraps) a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsType returns true if the error is (or wraps) a TypeError.
func IsType(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}
