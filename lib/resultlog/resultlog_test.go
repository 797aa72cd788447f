// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resultlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMarker(t *testing.T) {
	var buffer bytes.Buffer
	log := New(&buffer)

	log.Marker(ModeCheck, []string{"/build/btrfs", "check", "/tmp/a b.img"})
	log.Marker(ModeMustFail, []string{"/build/btrfs", "badcmd"})

	want := "====== RUN CHECK /build/btrfs check '/tmp/a b.img'\n" +
		"====== RUN MUSTFAIL /build/btrfs badcmd\n"
	if buffer.String() != want {
		t.Errorf("log = %q, want %q", buffer.String(), want)
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.txt")

	for _, line := range []string{"first", "second"} {
		log, err := Open(path)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		log.Linef("%s", line)
		if err := log.Append(strings.NewReader("output\n")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := log.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first\noutput\nsecond\noutput\n" {
		t.Errorf("unexpected log content: %q", data)
	}
}

func TestJoin(t *testing.T) {
	tests := map[string][]string{
		"a b c":          {"a", "b", "c"},
		"a ''":           {"a", ""},
		`echo 'it'\''s'`: {"echo", "it's"},
		"x '$HOME'":      {"x", "$HOME"},
	}
	for want, command := range tests {
		if got := Join(command); got != want {
			t.Errorf("Join(%q) = %q, want %q", command, got, want)
		}
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
