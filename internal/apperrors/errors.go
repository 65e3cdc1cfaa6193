// Package apperrors defines the error kinds shared across pathwaydb.
package apperrors

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrStorage       = errors.New("storage error")
	ErrNetwork       = errors.New("network error")
	ErrNotFound      = errors.New("not found")
	ErrParse         = errors.New("parse error")
	ErrInvalidFilter = errors.New("invalid filter")
)

// Error attaches an operation and a kind to an underlying error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New wraps err with op and kind. A nil err yields an error carrying only the kind.
func New(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Newf is New with a formatted message as the underlying error.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Storage wraps a persistence failure. Nil in, nil out.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
