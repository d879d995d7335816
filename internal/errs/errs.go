// Package errs defines the error taxonomy shared by the catalog pipeline.
//
// Every failure surfaced by the pipeline belongs to one of four kinds. Callers
// classify errors with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errs.ErrValidation) { ... }
//
// Kinds never trigger recovery inside the pipeline. They exist so that CLIs
// and tests can tell a bad configuration from malformed engine output.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks malformed or inconsistent configuration
	// (e.g. vector columns present but an empty filter list).
	ErrConfiguration = errors.New("configuration error")

	// ErrDataFormat marks raw engine output that does not match the expected
	// column count or shape.
	ErrDataFormat = errors.New("data format error")

	// ErrValidation marks a caller-supplied value or catalog state that breaks
	// an operation's precondition.
	ErrValidation = errors.New("validation error")

	// ErrInternal marks an operation invoked out of sequence.
	ErrInternal = errors.New("internal error")
)

// Error is a classified pipeline error.
//
// Kind is one of the package sentinels. Err is an optional underlying cause
// and is reachable with errors.Unwrap / errors.As.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, cause error, format string, a ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: cause}
}

// Configuration returns an ErrConfiguration-kind error.
func Configuration(format string, a ...any) error {
	return newf(ErrConfiguration, nil, format, a...)
}

// DataFormat returns an ErrDataFormat-kind error.
func DataFormat(format string, a ...any) error {
	return newf(ErrDataFormat, nil, format, a...)
}

// Validation returns an ErrValidation-kind error.
func Validation(format string, a ...any) error {
	return newf(ErrValidation, nil, format, a...)
}

// Internal returns an ErrInternal-kind error.
func Internal(format string, a ...any) error {
	return newf(ErrInternal, nil, format, a...)
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(kind error, cause error, format string, a ...any) error {
	if cause == nil {
		return nil
	}
	return newf(kind, cause, format, a...)
}
