package catalog

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving the engine matches exactly one of these
// with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrAuthorization   = errors.New("authorization error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrTransaction     = errors.New("transaction error")
	ErrExternalService = errors.New("external service error")
)

// ErrDuplicateKey is returned by Tx inserts when another unit already owns
// the natural key. Callers resolve it by looking the entity up again.
var ErrDuplicateKey = &Error{Kind: ErrConflict, Op: "insert", Err: errors.New("natural key already exists")}

// ErrInconsistent is returned when a bidirectional reference check fails.
var ErrInconsistent = &Error{Kind: ErrConflict, Op: "verify", Err: errors.New("catalog references are inconsistent")}

// Error attaches a kind and the failing operation to a cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// E builds an *Error of the given kind.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error of the given kind from a format string.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrNotFound, ErrConflict, ErrTransaction, ErrExternalService} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
