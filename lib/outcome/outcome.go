// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package outcome

import (
	"errors"
	"fmt"
)

// Class is the classification tag attached to every execution.
type Class int

const (
	// Success is a zero exit from a mode that expects success.
	Success Class = iota

	// ExpectedFailure is a nonzero exit from a mustfail-class call.
	ExpectedFailure

	// ToleratedFailure is a nonzero, non-crash exit from a mayfail
	// call. The status is handed back to the caller.
	ToleratedFailure

	// UnexpectedFailure is a nonzero exit from a check-class call.
	UnexpectedFailure

	// UnexpectedCrash is exit status 139 or 134 under any mode.
	UnexpectedCrash

	// UnexpectedSuccess is a zero exit from a mustfail-class call.
	UnexpectedSuccess
)

// String returns the log name of the class.
func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case ExpectedFailure:
		return "expected-failure"
	case ToleratedFailure:
		return "tolerated-failure"
	case UnexpectedFailure:
		return "unexpected-failure"
	case UnexpectedCrash:
		return "unexpected-crash"
	case UnexpectedSuccess:
		return "unexpected-success"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Fatal reports whether the class terminates the current test.
func (c Class) Fatal() bool {
	switch c {
	case UnexpectedFailure, UnexpectedCrash, UnexpectedSuccess:
		return true
	default:
		return false
	}
}

// Failure is a fatal classification of a single execution. It carries
// the literal command line that ran so the binary can report it
// without consulting the results log.
type Failure struct {
	// Class is one of the fatal classes.
	Class Class

	// Command is the fully rendered command line.
	Command string

	// ExitCode is the shell-style exit status, or -1 if the command
	// could not be started.
	ExitCode int

	// Message is the human-readable outcome line, as written to the
	// results log.
	Message string

	// Err is the underlying execution error, if any.
	Err error
}

func (f *Failure) Error() string {
	if f.Command == "" {
		return f.Message
	}
	return fmt.Sprintf("%s (command: %s)", f.Message, f.Command)
}

func (f *Failure) Unwrap() error { return f.Err }

// AssertionError is caller misuse: a missing or invalid argument to a
// harness operation. It is never retried and never classified as a
// test result.
type AssertionError struct {
	Err error
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Err.Error() }

func (e *AssertionError) Unwrap() error { return e.Err }

// Assertf creates an AssertionError.
func Assertf(format string, args ...any) *AssertionError {
	return &AssertionError{Err: fmt.Errorf(format, args...)}
}

// UnavailableError means an environment precondition is missing. The
// test is not applicable on this host; this is not a failure.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return "not applicable: " + e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

// Unavailablef creates an UnavailableError.
func Unavailablef(format string, args ...any) *UnavailableError {
	return &UnavailableError{Err: fmt.Errorf(format, args...)}
}

// IsNotApplicable reports whether err (or anything it wraps) is an
// UnavailableError.
func IsNotApplicable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsAssertion reports whether err (or anything it wraps) is an
// AssertionError.
func IsAssertion(err error) bool {
	var assertion *AssertionError
	return errors.As(err, &assertion)
}

// ClassOf returns the class of a fatal Failure wrapped in err.
func ClassOf(err error) (Class, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Class, true
	}
	return 0, false
}

// Exit statuses of the fsharness binary.
const (
	ExitPassed    = 0
	ExitFailed    = 1
	ExitAssertion = 2
)

// ExitCode maps an error returned through the harness to the binary's
// exit status. Not-applicable results exit zero.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitPassed
	case IsNotApplicable(err):
		return ExitPassed
	case IsAssertion(err):
		return ExitAssertion
	default:
		return ExitFailed
	}
}
