// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"os/exec"
	"testing"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"plain failure", "exit 2", 2},
		{"explicit 139", "exit 139", 139},
		{"killed by SIGSEGV", "kill -SEGV $$", ExitSegfault},
		{"killed by SIGABRT", "kill -ABRT $$", ExitAbort},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := exec.Command("/bin/sh", "-c", test.script).Run()
			status, ok := ExitStatus(err)
			if !ok {
				t.Fatalf("ExitStatus(%v) not ok", err)
			}
			if status != test.want {
				t.Errorf("ExitStatus = %d, want %d", status, test.want)
			}
		})
	}
}

func TestExitStatusNotAnExit(t *testing.T) {
	err := exec.Command("/nonexistent/fsharness-binary").Run()
	if err == nil {
		t.Fatal("expected start failure")
	}
	if _, ok := ExitStatus(err); ok {
		t.Errorf("start failure should not decode as an exit status")
	}
	if _, ok := ExitStatus(errors.New("plain")); ok {
		t.Errorf("plain error should not decode as an exit status")
	}
}

func TestIsCrash(t *testing.T) {
	for status, want := range map[int]bool{0: false, 1: false, 2: false, 134: true, 139: true, 137: false} {
		if got := IsCrash(status); got != want {
			t.Errorf("IsCrash(%d) = %v, want %v", status, got, want)
		}
	}
	if CrashName(ExitSegfault) != "SEGFAULT" || CrashName(ExitAbort) != "SIGABRT" || CrashName(1) != "" {
		t.Errorf("unexpected crash names")
	}
}
