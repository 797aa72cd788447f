// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/bureau-foundation/fsharness/lib/cmdspec"
	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/privilege"
	"github.com/bureau-foundation/fsharness/lib/process"
	"github.com/bureau-foundation/fsharness/lib/resultlog"
)

// Command is what a test asks to run: an argument vector, program
// first, and whether it needs privilege.
type Command struct {
	Args       []string
	Privileged bool
}

// Cmd describes an unprivileged command.
func Cmd(args ...string) Command {
	return Command{Args: args}
}

// Privileged describes a command run through the privilege mediator.
func Privileged(args ...string) Command {
	return Command{Args: args, Privileged: true}
}

// Result is the classified outcome of one execution.
type Result struct {
	// Command is the rendered command line that ran.
	Command string

	// ExitCode is the shell-style exit status.
	ExitCode int

	// Class is the classification.
	Class outcome.Class

	// Output is the captured standard output. Only the Stdout entry
	// points fill it.
	Output []byte
}

// Config holds configuration for creating a Runner.
type Config struct {
	// Log receives markers, command lines and output. Required.
	Log *resultlog.Log

	// Mediator wraps privileged commands. Required only if
	// privileged commands are run.
	Mediator *privilege.Mediator

	// Tools recognizes the tool under test for argument splicing.
	Tools cmdspec.ToolSet

	// Spec is the override table. May be nil.
	Spec *cmdspec.Spec

	// Logger for operational messages. Default: slog.Default().
	Logger *slog.Logger
}

// Runner executes commands. It is not safe for concurrent use; the
// harness runs one command at a time.
type Runner struct {
	log      *resultlog.Log
	mediator *privilege.Mediator
	tools    cmdspec.ToolSet
	spec     *cmdspec.Spec
	logger   *slog.Logger
}

// New creates a Runner.
func New(config Config) (*Runner, error) {
	if config.Log == nil {
		return nil, fmt.Errorf("results log is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		log:      config.Log,
		mediator: config.Mediator,
		tools:    config.Tools,
		spec:     config.Spec,
		logger:   logger,
	}, nil
}

// Log returns the results log the runner writes to.
func (r *Runner) Log() *resultlog.Log { return r.log }

// Check runs command and requires a zero exit.
func (r *Runner) Check(ctx context.Context, command Command) (*Result, error) {
	return r.check(ctx, command, false)
}

// CheckStdout is Check, with standard output both streamed to the
// results log and returned in Result.Output.
func (r *Runner) CheckStdout(ctx context.Context, command Command) (*Result, error) {
	return r.check(ctx, command, true)
}

func (r *Runner) check(ctx context.Context, command Command, capture bool) (*Result, error) {
	invocation, err := r.prepare(ctx, resultlog.ModeCheck, command)
	if err != nil {
		return nil, err
	}

	var captured bytes.Buffer
	stdout := r.log.Writer()
	if capture {
		stdout = io.MultiWriter(r.log.Writer(), &captured)
	}

	result, runErr := r.execute(ctx, invocation, stdout)
	if capture {
		result.Output = captured.Bytes()
	}

	switch {
	case result.ExitCode == 0:
		result.Class = outcome.Success
		return result, nil
	case process.IsCrash(result.ExitCode):
		return result, r.fail(result, outcome.UnexpectedCrash,
			fmt.Sprintf("failed: returned code %d (%s): %s", result.ExitCode, process.CrashName(result.ExitCode), result.Command), runErr)
	default:
		return result, r.fail(result, outcome.UnexpectedFailure, "failed: "+result.Command, runErr)
	}
}

// MayFail runs command and tolerates a nonzero exit, which is
// returned in Result.ExitCode with class ToleratedFailure. Exit
// statuses 139 and 134 are never tolerated.
func (r *Runner) MayFail(ctx context.Context, command Command) (*Result, error) {
	invocation, err := r.prepare(ctx, resultlog.ModeMayFail, command)
	if err != nil {
		return nil, err
	}

	result, runErr := r.execute(ctx, invocation, r.log.Writer())
	if result.ExitCode == 0 {
		result.Class = outcome.Success
		return result, nil
	}

	r.log.Linef("failed (ignored, ret=%d): %s", result.ExitCode, result.Command)
	if result.ExitCode < 0 {
		return result, r.fail(result, outcome.UnexpectedFailure, "mayfail: could not execute: "+result.Command, runErr)
	}
	if process.IsCrash(result.ExitCode) {
		return result, r.fail(result, outcome.UnexpectedCrash,
			fmt.Sprintf("mayfail: returned code %d (%s), not ignored", result.ExitCode, process.CrashName(result.ExitCode)), runErr)
	}

	result.Class = outcome.ToleratedFailure
	return result, nil
}

// MustFail runs command and requires a nonzero exit. message describes
// the expected failure for the results log; it must not be a path or a
// command name, which would mean the caller forgot it and passed the
// command in its place.
func (r *Runner) MustFail(ctx context.Context, message string, command Command) (*Result, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	invocation, err := r.prepare(ctx, resultlog.ModeMustFail, command)
	if err != nil {
		return nil, err
	}

	result, runErr := r.execute(ctx, invocation, r.log.Writer())
	return result, r.classifyMustFail(result, message, runErr)
}

// MustFailStdout is MustFail, with standard output captured to a
// temporary file instead of streamed, then appended to the results log
// and returned in Result.Output. The temporary file is always removed.
func (r *Runner) MustFailStdout(ctx context.Context, message string, command Command) (*Result, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	invocation, err := r.prepare(ctx, resultlog.ModeMustFail, command)
	if err != nil {
		return nil, err
	}

	temporary, err := os.CreateTemp("", "fsharness-stdout-*")
	if err != nil {
		return nil, fmt.Errorf("creating stdout capture file: %w", err)
	}
	defer os.Remove(temporary.Name())
	defer temporary.Close()

	result, runErr := r.execute(ctx, invocation, temporary)

	if _, err := temporary.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding stdout capture file: %w", err)
	}
	output, err := io.ReadAll(temporary)
	if err != nil {
		return nil, fmt.Errorf("reading stdout capture file: %w", err)
	}
	if err := r.log.Append(bytes.NewReader(output)); err != nil {
		r.logger.Warn("appending captured output to results log", "error", err)
	}
	result.Output = output

	return result, r.classifyMustFail(result, message, runErr)
}

func (r *Runner) classifyMustFail(result *Result, message string, runErr error) error {
	switch {
	case result.ExitCode == 0:
		return r.fail(result, outcome.UnexpectedSuccess, "unexpected success: "+message, nil)
	case result.ExitCode < 0:
		return r.fail(result, outcome.UnexpectedFailure, "mustfail: could not execute: "+result.Command, runErr)
	case process.IsCrash(result.ExitCode):
		return r.fail(result, outcome.UnexpectedCrash,
			fmt.Sprintf("mustfail: returned code %d (%s), not an expected failure: %s", result.ExitCode, process.CrashName(result.ExitCode), message), runErr)
	default:
		r.log.Linef("failed (expected): %s", message)
		result.Class = outcome.ExpectedFailure
		return nil
	}
}

// validateMessage rejects a mustfail message that is really the first
// word of a command: an existing file, directory or device, or a name
// found in PATH.
func validateMessage(message string) error {
	if message == "" {
		return outcome.Assertf("mustfail requires a message")
	}
	if _, err := os.Stat(message); err == nil {
		return outcome.Assertf("mustfail message %q is an existing path; the message argument is missing", message)
	}
	if _, err := exec.LookPath(message); err == nil {
		return outcome.Assertf("mustfail message %q is a command; the message argument is missing", message)
	}
	return nil
}

// prepare builds the invocation and writes the marker line.
func (r *Runner) prepare(ctx context.Context, mode resultlog.Mode, command Command) (*cmdspec.Invocation, error) {
	invocation, err := r.build(ctx, command)
	if err != nil {
		return nil, err
	}
	r.log.Marker(mode, invocation.Render())
	return invocation, nil
}

// build splices extras into command and applies the mediator prefix.
// Privilege is negotiated on the first privileged command if the
// session has not been set up yet.
func (r *Runner) build(ctx context.Context, command Command) (*cmdspec.Invocation, error) {
	if len(command.Args) == 0 || command.Args[0] == "" {
		return nil, outcome.Assertf("command is required")
	}

	var mediator []string
	if command.Privileged {
		if r.mediator == nil {
			return nil, outcome.Assertf("privileged command %q but no privilege mediator configured", command.Args[0])
		}
		if _, err := r.mediator.Setup(ctx); err != nil {
			return nil, err
		}
		prefix, err := r.mediator.Prefix()
		if err != nil {
			return nil, err
		}
		mediator = prefix
	}

	invocation, err := cmdspec.Build(command.Args, cmdspec.BuildOptions{
		Privileged: command.Privileged,
		Mediator:   mediator,
		Tools:      r.tools,
		Spec:       r.spec,
	})
	if err != nil {
		return nil, outcome.Assertf("%v", err)
	}
	return invocation, nil
}

// execute runs the invocation to completion. Standard error always
// goes to the results log.
func (r *Runner) execute(ctx context.Context, invocation *cmdspec.Invocation, stdout io.Writer) (*Result, error) {
	argv := invocation.Render()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = r.log.Writer()

	r.logger.Debug("executing", "command", argv, "privileged", invocation.Privileged)

	err := cmd.Run()
	status, ok := process.ExitStatus(err)
	if !ok {
		r.log.Linef("cannot execute: %v", err)
	}

	result := &Result{
		Command:  invocation.String(),
		ExitCode: status,
	}
	r.logger.Debug("executed", "command", argv, "exit_code", status)
	return result, err
}

// fail records a fatal outcome in the results log and returns it.
func (r *Runner) fail(result *Result, class outcome.Class, message string, cause error) error {
	result.Class = class
	r.log.Linef("%s", message)
	r.logger.Error("command failed",
		"class", class.String(),
		"command", result.Command,
		"exit_code", result.ExitCode,
	)

	var exitErr *exec.ExitError
	if errors.As(cause, &exitErr) {
		// The exit status is already on the Failure.
		cause = nil
	}
	return &outcome.Failure{
		Class:    class,
		Command:  result.Command,
		ExitCode: result.ExitCode,
		Message:  message,
		Err:      cause,
	}
}

// Args returns the argument vector command would execute with. It
// writes nothing to the results log and runs nothing.
func (r *Runner) Args(ctx context.Context, command Command) ([]string, error) {
	invocation, err := r.build(ctx, command)
	if err != nil {
		return nil, err
	}
	return invocation.Render(), nil
}
