// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const (
	// ExitSegfault is the status a shell reports for a child killed
	// by SIGSEGV (128+11).
	ExitSegfault = 139

	// ExitAbort is the status a shell reports for a child killed by
	// SIGABRT (128+6), typically from a failed assertion.
	ExitAbort = 134
)

// ExitStatus returns the shell-style exit status for the error
// returned by exec.Cmd.Run or Wait. A nil error is status 0. A child
// terminated by a signal reports 128+signal, so a segfault is 139
// whether the tool exited with that code itself or the kernel killed
// it. ok is false when err does not describe a process exit at all
// (the binary could not be started, for example).
func ExitStatus(err error) (status int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, false
	}
	if waitStatus, isWaitStatus := exitErr.Sys().(syscall.WaitStatus); isWaitStatus && waitStatus.Signaled() {
		return 128 + int(waitStatus.Signal()), true
	}
	return exitErr.ExitCode(), true
}

// IsCrash reports whether status means the tool crashed rather than
// failed. Crashes are never tolerated, regardless of execution mode.
func IsCrash(status int) bool {
	return status == ExitSegfault || status == ExitAbort
}

// CrashName returns the conventional signal name for a crash status,
// or the empty string for any other status.
func CrashName(status int) string {
	switch status {
	case ExitSegfault:
		return "SEGFAULT"
	case ExitAbort:
		return "SIGABRT"
	default:
		return ""
	}
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors that occur before the structured logger exists.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
