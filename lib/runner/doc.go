// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes commands for tests and classifies how they
// ended.
//
// Every entry point shares one skeleton: splice suite-wide extra
// arguments into the command ([cmdspec.Build]), wrap it for privilege
// when requested ([privilege.Mediator]), write a marker line and the
// literal command line to the results log, run it to completion, and
// classify the exit status. The entry points differ only in
// classification policy:
//
//   - [Runner.Check] and [Runner.CheckStdout]: nonzero is fatal.
//   - [Runner.MayFail]: nonzero is handed back to the caller, except
//     139 and 134, which are always fatal.
//   - [Runner.MustFail] and [Runner.MustFailStdout]: zero is fatal,
//     nonzero is the expected outcome. 139 and 134 are still fatal.
//
// Classification looks at the exit status only, never at output.
// Fatal outcomes are returned as [*outcome.Failure] errors; the caller
// stops the test. Commands run one at a time and block until the
// child exits. There is no timeout: a hung tool hangs the harness.
package runner
