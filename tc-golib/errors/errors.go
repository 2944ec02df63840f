// Package errors builds and inspects the errors returned across the module.
// Sentinel kinds are wrapped with context by Wrapf and matched with Is.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errorf is fmt.Errorf
var Errorf = fmt.Errorf

// New is an alias to Errorf
var New = Errorf

// Is reports whether any error in the chain of err matches target.
var Is = errors.Is

// As finds the first error in the chain of err that matches target.
var As = errors.As

// WrapfOrNil prefixes err with a formatted message. A nil err stays nil.
func WrapfOrNil(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithMessagef(err, format, args...)
}

// Wrapf is WrapfOrNil for a non-nil err and Errorf otherwise, so it never
// returns nil. The wrapped error stays reachable through Is and As.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return Errorf(format, args...)
	}
	return WrapfOrNil(err, format, args...)
}
