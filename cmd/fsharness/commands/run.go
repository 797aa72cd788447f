// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

// runMode is one of the runner's entry points, adapted to a common
// shape.
type runMode struct {
	name        string
	summary     string
	needMessage bool
	printOutput bool
	call        func(ctx context.Context, r *runner.Runner, message string, command runner.Command) (*runner.Result, error)
}

var runModes = []runMode{
	{
		name:    "check",
		summary: "Run a command that must succeed",
		call: func(ctx context.Context, r *runner.Runner, _ string, command runner.Command) (*runner.Result, error) {
			return r.Check(ctx, command)
		},
	},
	{
		name:        "check-stdout",
		summary:     "Run a command that must succeed and print its output",
		printOutput: true,
		call: func(ctx context.Context, r *runner.Runner, _ string, command runner.Command) (*runner.Result, error) {
			return r.CheckStdout(ctx, command)
		},
	},
	{
		name:    "mayfail",
		summary: "Run a command whose failure is tolerated unless it crashes",
		call: func(ctx context.Context, r *runner.Runner, _ string, command runner.Command) (*runner.Result, error) {
			return r.MayFail(ctx, command)
		},
	},
	{
		name:        "mustfail",
		summary:     "Run a command that must fail cleanly",
		needMessage: true,
		call: func(ctx context.Context, r *runner.Runner, message string, command runner.Command) (*runner.Result, error) {
			return r.MustFail(ctx, message, command)
		},
	},
	{
		name:        "mustfail-stdout",
		summary:     "Run a command that must fail cleanly and print its output",
		needMessage: true,
		printOutput: true,
		call: func(ctx context.Context, r *runner.Runner, message string, command runner.Command) (*runner.Result, error) {
			return r.MustFailStdout(ctx, message, command)
		},
	},
}

func runCommand(logger *slog.Logger) *cli.Command {
	command := &cli.Command{
		Name:    "run",
		Summary: "Run a command in a test mode",
		Description: `Run a command under one of the harness modes. The command line is
recorded in the results log with its output and outcome, and the
exit status reflects the classification: 0 when the mode's
expectation held, 1 for a test failure or crash, 2 for misuse.`,
	}
	for _, mode := range runModes {
		command.Subcommands = append(command.Subcommands, runModeCommand(logger, mode))
	}
	return command
}

func runModeCommand(logger *slog.Logger, mode runMode) *cli.Command {
	var session sessionFlags
	var privileged bool

	usage := "fsharness run " + mode.name + " [flags] <command> [args...]"
	if mode.needMessage {
		usage = "fsharness run " + mode.name + " [flags] <message> <command> [args...]"
	}

	return &cli.Command{
		Name:    mode.name,
		Summary: mode.summary,
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet(mode.name, &session)
			flagSet.BoolVar(&privileged, "privileged", false, "run through the privilege mediator")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			var message string
			if mode.needMessage {
				if len(args) == 0 {
					return cli.Usagef("%s requires a message and a command", mode.name)
				}
				message, args = args[0], args[1:]
			}
			if len(args) == 0 {
				return cli.Usagef("%s requires a command", mode.name)
			}

			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			command := runner.Command{Args: args, Privileged: privileged}
			result, err := mode.call(ctx, harnessSession.Runner(), message, command)
			if result != nil && mode.printOutput {
				os.Stdout.Write(result.Output)
			}
			if err != nil {
				return err
			}
			logger.Debug("command classified",
				"mode", mode.name,
				"class", result.Class.String(),
				"exit_code", result.ExitCode,
			)
			if mode.name == "mayfail" && result.ExitCode != 0 {
				fmt.Fprintf(os.Stderr, "tolerated exit status %d\n", result.ExitCode)
			}
			return nil
		},
	}
}
