// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package privilege

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/testutil"
)

func unprivileged() int { return 1000 }

// fakeSudo returns an escalation program whose "-n true" probe exits
// trusted and whose "-v" probe exits cached.
func fakeSudo(t *testing.T, calls *testutil.CallLog, trusted, cached string) string {
	t.Helper()
	return testutil.FakeTool(t, "sudo", calls.Record()+`
case "$1" in
-n) [ "$2" = true ] && exit `+trusted+`; shift; exec "$@" ;;
-v) exit `+cached+` ;;
esac
exit 1
`)
}

func TestSetupElevated(t *testing.T) {
	mediator := NewMediator(Config{
		Program:      "/nonexistent/sudo",
		EffectiveUID: func() int { return 0 },
	})

	session, err := mediator.Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if session != SessionElevated {
		t.Errorf("session = %s, want %s", session, SessionElevated)
	}
	wrapped, err := mediator.Wrap([]string{"losetup", "--all"})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if !slices.Equal(wrapped, []string{"losetup", "--all"}) {
		t.Errorf("pass-through wrap = %v", wrapped)
	}
}

func TestSetupPreset(t *testing.T) {
	mediator := NewMediator(Config{
		Helper:       []string{"doas"},
		EffectiveUID: unprivileged,
	})

	session, err := mediator.Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if session != SessionPreset {
		t.Errorf("session = %s, want %s", session, SessionPreset)
	}
	prefix, err := mediator.Prefix()
	if err != nil {
		t.Fatalf("Prefix failed: %v", err)
	}
	if !slices.Equal(prefix, []string{"doas"}) {
		t.Errorf("prefix = %v", prefix)
	}
}

func TestSetupPosturePreference(t *testing.T) {
	tests := []struct {
		name    string
		trusted string
		cached  string
		want    Session
	}{
		{"both succeed prefers cached credential", "0", "0", SessionInteractive},
		{"only cached credential", "1", "0", SessionInteractive},
		{"only non-interactive", "0", "1", SessionNonInteractive},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			calls := testutil.NewCallLog(t)
			program := fakeSudo(t, calls, test.trusted, test.cached)
			mediator := NewMediator(Config{Program: program, EffectiveUID: unprivileged})

			session, err := mediator.Setup(context.Background())
			if err != nil {
				t.Fatalf("Setup failed: %v", err)
			}
			if session != test.want {
				t.Errorf("session = %s, want %s", session, test.want)
			}

			wrapped, err := mediator.Wrap([]string{"losetup", "-d", "/dev/loop0"})
			if err != nil {
				t.Fatalf("Wrap failed: %v", err)
			}
			want := []string{program, "-n", "losetup", "-d", "/dev/loop0"}
			if !slices.Equal(wrapped, want) {
				t.Errorf("Wrap = %v, want %v", wrapped, want)
			}
		})
	}
}

func TestSetupUnavailable(t *testing.T) {
	calls := testutil.NewCallLog(t)
	program := fakeSudo(t, calls, "1", "1")
	mediator := NewMediator(Config{Program: program, EffectiveUID: unprivileged})

	_, err := mediator.Setup(context.Background())
	if err == nil {
		t.Fatal("expected error when no posture works")
	}
	if !outcome.IsNotApplicable(err) {
		t.Errorf("expected not-applicable classification, got %v", err)
	}
	if outcome.ExitCode(err) != outcome.ExitPassed {
		t.Errorf("unavailable privilege must not fail the run")
	}
	if mediator.Session() != SessionUnknown {
		t.Errorf("session = %s after failed setup", mediator.Session())
	}
}

func TestSetupMissingProgram(t *testing.T) {
	mediator := NewMediator(Config{Program: "/nonexistent/fsharness-sudo", EffectiveUID: unprivileged})
	_, err := mediator.Setup(context.Background())
	if !outcome.IsNotApplicable(err) {
		t.Fatalf("expected not-applicable, got %v", err)
	}
}

func TestSetupProbesOnce(t *testing.T) {
	calls := testutil.NewCallLog(t)
	program := fakeSudo(t, calls, "0", "1")
	mediator := NewMediator(Config{Program: program, EffectiveUID: unprivileged})

	for i := 0; i < 3; i++ {
		if _, err := mediator.Setup(context.Background()); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	probes := 0
	for _, line := range calls.Lines(t) {
		if strings.HasPrefix(line, "sudo ") {
			probes++
		}
	}
	if probes != 2 {
		t.Errorf("expected exactly 2 probe executions, got %d: %v", probes, calls.Lines(t))
	}
}

func TestPrefixBeforeSetup(t *testing.T) {
	mediator := NewMediator(Config{EffectiveUID: unprivileged})
	if _, err := mediator.Prefix(); err == nil {
		t.Error("expected error before Setup")
	}
	if _, err := mediator.Wrap([]string{"true"}); err == nil {
		t.Error("expected Wrap error before Setup")
	}
}
