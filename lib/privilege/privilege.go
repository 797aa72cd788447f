// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package privilege negotiates, once per run, how the harness obtains
// elevated privilege, and wraps privileged commands accordingly.
//
// [Mediator.Setup] moves the session out of [SessionUnknown] exactly
// once. A process that is already privileged gets a pass-through
// session with no prefix. A configured helper is used verbatim.
// Otherwise the escalation program (sudo by default) is probed two
// ways: "already trusted" (sudo -n true) and "validate and cache a
// credential" (sudo -v). When both work the cached-credential posture
// is recorded, since that is sudo's default policy; in either case
// commands are wrapped non-interactively, so a privileged command
// never stops to prompt. When neither works the run cannot proceed and
// Setup returns an [outcome.UnavailableError]: the test is not
// applicable on this host.
//
// The session is never re-probed or reset after Setup.
package privilege

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/bureau-foundation/fsharness/lib/outcome"
)

// Session is the negotiated privilege posture.
type Session int

const (
	// SessionUnknown is the state before Setup.
	SessionUnknown Session = iota

	// SessionInteractive means a time-limited credential was
	// validated and cached.
	SessionInteractive

	// SessionNonInteractive means the escalation program is already
	// trusted without a credential.
	SessionNonInteractive

	// SessionElevated means the process is already privileged and
	// mediation is a pass-through.
	SessionElevated

	// SessionPreset means the helper prefix was configured
	// explicitly and no probing was done.
	SessionPreset
)

// String returns the log name of the session.
func (s Session) String() string {
	switch s {
	case SessionUnknown:
		return "unknown"
	case SessionInteractive:
		return "validated-interactive"
	case SessionNonInteractive:
		return "validated-non-interactive"
	case SessionElevated:
		return "elevated"
	case SessionPreset:
		return "preset"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds configuration for creating a Mediator.
type Config struct {
	// Program is the escalation program to probe. Default: sudo.
	Program string

	// Helper, when non-empty, is used as the command prefix without
	// probing.
	Helper []string

	// EffectiveUID reports the process's effective uid. Default:
	// unix.Geteuid.
	EffectiveUID func() int

	// Logger for negotiation. Default: slog.Default().
	Logger *slog.Logger
}

// Mediator owns the process-wide privilege session.
type Mediator struct {
	program      string
	helper       []string
	effectiveUID func() int
	logger       *slog.Logger

	session Session
	prefix  []string
}

// NewMediator creates a Mediator in SessionUnknown.
func NewMediator(config Config) *Mediator {
	program := config.Program
	if program == "" {
		program = "sudo"
	}
	effectiveUID := config.EffectiveUID
	if effectiveUID == nil {
		effectiveUID = unix.Geteuid
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mediator{
		program:      program,
		helper:       slices.Clone(config.Helper),
		effectiveUID: effectiveUID,
		logger:       logger,
	}
}

// Session returns the negotiated session.
func (m *Mediator) Session() Session { return m.session }

// Setup negotiates the session. Calling it again after a successful
// negotiation returns the existing session without probing.
func (m *Mediator) Setup(ctx context.Context) (Session, error) {
	if m.session != SessionUnknown {
		return m.session, nil
	}

	switch {
	case m.effectiveUID() == 0:
		m.resolve(SessionElevated, nil)
	case len(m.helper) > 0:
		m.resolve(SessionPreset, m.helper)
	default:
		if err := m.probe(ctx); err != nil {
			return SessionUnknown, err
		}
	}
	return m.session, nil
}

// probe tries both escalation postures and records the preferred one.
func (m *Mediator) probe(ctx context.Context) error {
	program, err := exec.LookPath(m.program)
	if err != nil {
		return outcome.Unavailablef("privilege escalation program %q not found", m.program)
	}

	trusted := m.run(ctx, program, false, "-n", "true")
	cached := m.validateCredential(ctx, program)

	m.logger.Debug("privilege probes",
		"program", program,
		"non_interactive", trusted,
		"cached_credential", cached,
	)

	nonInteractive := []string{program, "-n"}
	switch {
	case cached:
		m.resolve(SessionInteractive, nonInteractive)
	case trusted:
		m.resolve(SessionNonInteractive, nonInteractive)
	default:
		return outcome.Unavailablef("cannot obtain privilege through %s (neither non-interactive nor cached credential works)", program)
	}
	return nil
}

// validateCredential validates and caches a credential. A password
// prompt is only possible when stdin is a terminal; otherwise the
// probe is non-interactive and succeeds only for an existing
// credential.
func (m *Mediator) validateCredential(ctx context.Context, program string) bool {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return m.run(ctx, program, true, "-v")
	}
	return m.run(ctx, program, false, "-v", "-n")
}

func (m *Mediator) run(ctx context.Context, program string, interactive bool, args ...string) bool {
	cmd := exec.CommandContext(ctx, program, args...)
	if interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
	}
	return cmd.Run() == nil
}

func (m *Mediator) resolve(session Session, prefix []string) {
	m.session = session
	m.prefix = slices.Clone(prefix)
	m.logger.Info("privilege session established",
		"session", session.String(),
		"prefix", prefix,
	)
}

// Prefix returns the command prefix for privileged commands. It is
// empty for a pass-through session. Before Setup it returns an error.
func (m *Mediator) Prefix() ([]string, error) {
	if m.session == SessionUnknown {
		return nil, fmt.Errorf("privilege session not established (call Setup first)")
	}
	return slices.Clone(m.prefix), nil
}

// Wrap returns argv prefixed for privileged execution.
func (m *Mediator) Wrap(argv []string) ([]string, error) {
	prefix, err := m.Prefix()
	if err != nil {
		return nil, err
	}
	return append(prefix, argv...), nil
}
