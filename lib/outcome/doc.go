// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package outcome defines how the harness classifies what happened
// when it ran something, and the error types that carry a fatal
// classification up to the binary.
//
// Every execution ends in exactly one [Class]. Three classes are
// recovered locally by the caller (Success, ExpectedFailure,
// ToleratedFailure). Three are fatal to the current test
// (UnexpectedFailure, UnexpectedCrash, UnexpectedSuccess) and travel
// as a [*Failure]. Caller misuse is an [*AssertionError]: also fatal,
// but reported separately because it is a bug in the test script,
// not in the tool under test. A missing environment capability
// (privilege, a helper binary, kernel support) is an
// [*UnavailableError] and ends the test as "not applicable" with a
// zero exit status.
//
// [ExitCode] maps any error returned through the harness to the
// process exit status of the binary.
package outcome
