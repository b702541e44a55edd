// Package dispatcherr classifies failures of the dispatch core so callers can
// decide between rolling back, logging or reporting to the operator.
package dispatcherr

import (
	"errors"
	"fmt"
)

// Kind is a failure class. Kinds are comparable with errors.Is.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

var (
	// Reconciliation marks a failed fetch during a reconciliation pass.
	Reconciliation = &Kind{"reconciliation failure"}
	// Assignment marks a failed remote write of a mutation. The working set
	// has been rolled back when this is returned.
	Assignment = &Kind{"assignment failure"}
	// SideEffect marks best-effort bookkeeping that failed without affecting
	// the outcome of the operation.
	SideEffect = &Kind{"side effect failure"}
	// Precondition marks a request rejected before any remote call.
	Precondition = &Kind{"precondition violation"}
)

// Error is a classified failure naming the operation that produced it.
type Error struct {
	Kind *Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds a classified error.
func New(kind *Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Preconditionf is shorthand for a precondition violation with a message.
func Preconditionf(op, format string, args ...any) *Error {
	return New(Precondition, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or nil when err is not classified.
func KindOf(err error) *Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// OpOf returns the operation named by err, or "" when err is not classified.
func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}
