// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FakeTool writes an executable shell script named name into a fresh
// temp directory and returns its absolute path. body is the script
// after the shebang line.
//
//	tool := testutil.FakeTool(t, "btrfs", `exit 2`)
func FakeTool(t *testing.T, name, body string) string {
	t.Helper()
	return FakeToolIn(t, t.TempDir(), name, body)
}

// FakeToolIn is FakeTool writing into an existing directory, for
// tests that need several tools side by side (a tool and its
// helpers, for example).
func FakeToolIn(t *testing.T, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool %s: %v", path, err)
	}
	return path
}

// CallLog is a file fake tools append one line per invocation to.
type CallLog struct {
	Path string
}

// NewCallLog creates an empty call log in a temp directory.
func NewCallLog(t *testing.T) *CallLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calls.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("creating call log: %v", err)
	}
	return &CallLog{Path: path}
}

// Record returns a shell snippet that appends the script's name and
// arguments to the log. Put it at the top of a fake tool body.
func (c *CallLog) Record() string {
	return `echo "$(basename "$0") $*" >> '` + c.Path + "'\n"
}

// Lines returns the recorded invocations in order.
func (c *CallLog) Lines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(c.Path)
	if err != nil {
		t.Fatalf("reading call log: %v", err)
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
