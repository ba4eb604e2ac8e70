package param

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown parameter or one without a known value.
	ErrNotFound = errors.New("param: not found")

	// ErrEncoding indicates a value that cannot be formatted for its parameter.
	ErrEncoding = errors.New("param: encoding error")

	// ErrReadOnly indicates an attempt to build a set command for a read-only
	// parameter.
	ErrReadOnly = errors.New("param: read-only parameter")

	// ErrUnknownPhrase indicates captured text missing from a parameter's
	// phrase set. UpdateFrom keeps the previous value.
	ErrUnknownPhrase = errors.New("param: unknown phrase")
)

// EncodingError reports a value rejected by Format or Set.
type EncodingError struct {
	Name  string
	Value any
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("param: cannot encode %v (%T) for %s: %v", e.Value, e.Value, e.Name, e.Err)
}

// Unwrap returns ErrEncoding together with the underlying cause.
func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

// RestoreError reports the parameter whose set failed during Restore.
type RestoreError struct {
	Name string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("param: restore %s: %v", e.Name, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
