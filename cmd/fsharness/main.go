// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/cmd/fsharness/commands"
	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()

	switch code := cli.ExitCode(err); {
	case err == nil:
		return
	case outcome.IsNotApplicable(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(code)
	case code == outcome.ExitFailed:
		process.Fatal(err)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(code)
	}
}

func run(ctx context.Context) error {
	logger := cli.NewCommandLogger()
	return commands.Root(logger).Execute(ctx, os.Args[1:])
}
