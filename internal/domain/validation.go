package domain

import (
	"errors"
	"strings"
)

// ErrInvalidParameters matches every *ValidationError via errors.Is.
var ErrInvalidParameters = errors.New("invalid simulation parameters")

// FieldError is a single rejected field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError lists the parameter fields that failed validation.
// It is raised before any network call is made.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Reason
	}
	return ErrInvalidParameters.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameters
}

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, reason string) {
	// One reason per field is enough for the caller.
	if e.Has(field) {
		return
	}
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
