// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopdev

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/privilege"
	"github.com/bureau-foundation/fsharness/lib/resultlog"
	"github.com/bureau-foundation/fsharness/lib/runner"
	"github.com/bureau-foundation/fsharness/lib/testutil"
)

// fakeLosetup emulates losetup with one file per attached device in a
// state directory. A "fail-loopN" file makes detaching loopN fail.
func fakeLosetup(t *testing.T, state string) string {
	t.Helper()
	return testutil.FakeTool(t, "losetup", `state='`+state+`'
case "$1" in
--find)
	n=0
	while [ -e "$state/loop$n" ]; do n=$((n+1)); done
	echo "$3" > "$state/loop$n"
	echo "/dev/loop$n"
	;;
-d)
	name=$(basename "$2")
	if [ -e "$state/fail-$name" ]; then echo "$2: device busy" >&2; exit 1; fi
	[ -e "$state/$name" ] || { echo "$2: no such device" >&2; exit 1; }
	rm "$state/$name"
	;;
--all)
	for f in "$state"/loop*; do [ -e "$f" ] && echo "$(basename "$f"): $(cat "$f")"; done
	;;
esac
exit 0
`)
}

type fixture struct {
	manager *Manager
	state   string
	prefix  string
	log     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := t.TempDir()
	prefix := filepath.Join(t.TempDir(), "img")

	helper := testutil.FakeTool(t, "fake-sudo", `exec "$@"`)
	var buffer bytes.Buffer
	run, err := runner.New(runner.Config{
		Log: resultlog.New(&buffer),
		Mediator: privilege.NewMediator(privilege.Config{
			Helper:       []string{helper},
			EffectiveUID: func() int { return 1000 },
		}),
	})
	if err != nil {
		t.Fatalf("runner.New failed: %v", err)
	}

	manager, err := New(Config{
		Runner:  run,
		Program: fakeLosetup(t, state),
		Prefix:  prefix,
		Size:    64 << 20,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{manager: manager, state: state, prefix: prefix, log: &buffer}
}

func (f *fixture) attachedCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.state, "loop*"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	return len(matches)
}

func TestLifecycleThreeDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Setup(3); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := f.manager.Prepare(ctx); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	devices := f.manager.Devices()
	if len(devices) != 3 {
		t.Fatalf("devices = %v, want 3", devices)
	}
	seen := map[string]bool{}
	for index := 1; index <= 3; index++ {
		device := f.manager.Device(index)
		if device == "" || seen[device] {
			t.Errorf("device %d = %q (devices %v)", index, device, devices)
		}
		seen[device] = true

		info, err := os.Stat(f.manager.BackingFile(index))
		if err != nil {
			t.Fatalf("backing file %d: %v", index, err)
		}
		if info.Size() != 64<<20 {
			t.Errorf("backing file %d size = %d", index, info.Size())
		}
	}
	if f.attachedCount(t) != 3 {
		t.Errorf("attached = %d, want 3", f.attachedCount(t))
	}

	if err := f.manager.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if f.attachedCount(t) != 0 {
		t.Errorf("attached after cleanup = %d", f.attachedCount(t))
	}
	for index := 1; index <= 3; index++ {
		if _, err := os.Stat(f.manager.BackingFile(index)); !os.IsNotExist(err) {
			t.Errorf("backing file %d still exists: %v", index, err)
		}
	}
	if len(f.manager.Devices()) != 0 {
		t.Errorf("devices still recorded: %v", f.manager.Devices())
	}
	if !strings.Contains(f.log.String(), "--all") {
		t.Errorf("final enumeration missing from log:\n%s", f.log.String())
	}
}

func TestCleanupLeavesNothingForAnyCount(t *testing.T) {
	for count := 1; count <= 5; count++ {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if err := f.manager.Setup(count); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}
			if err := f.manager.Prepare(ctx); err != nil {
				t.Fatalf("Prepare failed: %v", err)
			}
			if err := f.manager.Cleanup(ctx); err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if f.attachedCount(t) != 0 {
				t.Errorf("attached after cleanup = %d", f.attachedCount(t))
			}
			matches, _ := filepath.Glob(f.prefix + "*")
			if len(matches) != 0 {
				t.Errorf("backing files left: %v", matches)
			}
		})
	}
}

func TestCleanupIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Setup(3); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := f.manager.Prepare(ctx); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	stuck := filepath.Base(f.manager.Device(1))
	if err := os.WriteFile(filepath.Join(f.state, "fail-"+stuck), nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	err := f.manager.Cleanup(ctx)
	if err == nil {
		t.Fatal("expected error for the stuck device")
	}
	if _, ok := outcome.ClassOf(err); !ok {
		t.Errorf("detach failure should carry its classification: %v", err)
	}
	if f.attachedCount(t) != 1 {
		t.Errorf("attached after cleanup = %d, want only the stuck device", f.attachedCount(t))
	}
	if got := f.manager.Devices(); len(got) != 1 || filepath.Base(got[0]) != stuck {
		t.Errorf("recorded devices = %v, want [%s]", got, stuck)
	}
	for index := 1; index <= 3; index++ {
		if _, err := os.Stat(f.manager.BackingFile(index)); !os.IsNotExist(err) {
			t.Errorf("backing file %d not removed", index)
		}
	}
}

func TestCleanupAfterPartialPrepare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.manager.Setup(2); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	// Nothing was attached; cleanup still removes nothing and
	// succeeds.
	if err := f.manager.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
}

func TestSetupValidatesCount(t *testing.T) {
	f := newFixture(t)
	for _, count := range []int{0, -1} {
		if err := f.manager.Setup(count); !outcome.IsAssertion(err) {
			t.Errorf("Setup(%d): expected assertion, got %v", count, err)
		}
	}
	if err := f.manager.Prepare(context.Background()); !outcome.IsAssertion(err) {
		t.Errorf("Prepare before Setup: expected assertion, got %v", err)
	}
}

func TestPrepareTruncatesExistingBackingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.manager.Setup(1); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := os.WriteFile(f.manager.BackingFile(1), []byte("stale data"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := f.manager.Prepare(ctx); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	defer f.manager.Cleanup(ctx)

	data := make([]byte, 10)
	file, err := os.Open(f.manager.BackingFile(1))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer file.Close()
	if _, err := file.Read(data); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, make([]byte, 10)) {
		t.Errorf("stale content survived prepare: %q", data)
	}
}
