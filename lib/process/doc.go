// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process decodes how a child process ended and provides the
// entrypoint error handler for fsharness binaries.
//
// [ExitStatus] reduces the error returned by [os/exec.Cmd.Wait] to a
// single shell-style status: the exit code for a normal exit, or
// 128+signal when the child was killed by a signal. This is the only
// number the harness classifies on; output content is never
// inspected. [IsCrash] recognizes the two statuses that indicate a
// memory-safety defect in the tool under test ([ExitSegfault] and
// [ExitAbort]).
//
// [Fatal] is for main only. Everything else logs through slog or the
// results log.
package process
