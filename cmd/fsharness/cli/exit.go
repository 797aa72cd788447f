// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/fsharness/lib/outcome"
)

// UsageError is a malformed command line: unknown command or flag,
// missing subcommand, wrong argument count.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// Usagef creates a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error from a command to the process exit status.
// Usage errors exit 1 like any failure; the harness outcomes keep
// their own mapping.
func ExitCode(err error) int {
	var usage *UsageError
	if errors.As(err, &usage) {
		return outcome.ExitFailed
	}
	return outcome.ExitCode(err)
}
