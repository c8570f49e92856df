// Package validate implements schema and invariant validation: typed
// decoding of a document snapshot plus verification of its structural
// invariants. Validators never short-circuit — every failure is collected
// so an offline fixer gets a full diagnosis in one pass.
package validate

import (
	"fmt"
	"strings"
)

// Errors accumulates validation failures. It implements error so a validator
// result can be returned and checked with a plain `if err != nil`, but every
// caller that wants the individual failures should type-assert to *Errors.
// A flat list of diagnostics needs nothing beyond the standard library's
// errors.Join-shaped accumulation, so no multi-error package is pulled in.
type Errors struct {
	errs []error
}

// Add appends err if non-nil.
func (e *Errors) Add(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

// Addf appends a formatted error.
func (e *Errors) Addf(format string, args ...any) {
	e.Add(fmt.Errorf(format, args...))
}

// Ok reports whether no errors were collected.
func (e *Errors) Ok() bool {
	return e == nil || len(e.errs) == 0
}

// List returns the individual collected errors.
func (e *Errors) List() []error {
	if e == nil {
		return nil
	}
	return e.errs
}

// ErrOrNil returns e as an error if it has any entries, or nil otherwise —
// the usual "compose then return" tail call for a validation function.
func (e *Errors) ErrOrNil() error {
	if e.Ok() {
		return nil
	}
	return e
}

func (e *Errors) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
