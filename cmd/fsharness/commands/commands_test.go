// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/lib/image"
	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/testutil"
)

type environment struct {
	configPath string
	resultsLog string
	tool       string
	root       string
	losetupDir string
}

// newEnvironment writes a configuration whose tool, privilege helper
// and losetup are fakes under a temp directory.
func newEnvironment(t *testing.T) *environment {
	t.Helper()
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	state := filepath.Join(root, "loops")
	for _, directory := range []string{bin, state} {
		if err := os.Mkdir(directory, 0o755); err != nil {
			t.Fatalf("Mkdir failed: %v", err)
		}
	}

	tool := testutil.FakeToolIn(t, bin, "btrfs", `for last; do :; done
if [ "$1" = "check" ] && [ "$2" = "--repair" ]; then echo clean > "$last"; exit 0; fi
if [ "$1" = "check" ] && grep -q corrupt "$last" 2>/dev/null; then exit 1; fi
[ "$1" = "fail" ] && exit 1
exit 0`)
	helper := testutil.FakeToolIn(t, bin, "fake-sudo", `exec "$@"`)
	losetup := testutil.FakeToolIn(t, bin, "losetup", `state='`+state+`'
case "$1" in
--find) n=0; while [ -e "$state/loop$n" ]; do n=$((n+1)); done; echo "$3" > "$state/loop$n"; echo "/dev/loop$n" ;;
-d) rm "$state/$(basename "$2")" ;;
esac
exit 0`)

	resultsLog := filepath.Join(root, "results.txt")
	configPath := filepath.Join(root, "fsharness.yaml")
	yaml := `results_log: ` + resultsLog + `
tool: ` + tool + `
helpers_dir: ` + bin + `
test_device: ` + filepath.Join(root, "test.img") + `
mount_point: ` + filepath.Join(root, "mnt") + `
privilege:
  helper: [` + helper + `]
loop:
  prefix: ` + filepath.Join(root, "img") + `
  size: 8MiB
  program: ` + losetup + `
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return &environment{
		configPath: configPath,
		resultsLog: resultsLog,
		tool:       tool,
		root:       root,
		losetupDir: state,
	}
}

func (e *environment) execute(t *testing.T, args ...string) error {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Root(logger).Execute(context.Background(), args)
}

func (e *environment) results(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.resultsLog)
	if err != nil {
		t.Fatalf("reading results log: %v", err)
	}
	return string(data)
}

func TestRunModes(t *testing.T) {
	env := newEnvironment(t)

	if err := env.execute(t, "run", "check", "--config", env.configPath, env.tool, "version"); err != nil {
		t.Fatalf("run check failed: %v", err)
	}
	if err := env.execute(t, "run", "mayfail", "--config", env.configPath, env.tool, "fail"); err != nil {
		t.Fatalf("run mayfail failed: %v", err)
	}
	if err := env.execute(t, "run", "mustfail", "--config", env.configPath, "fail subcommand rejected", env.tool, "fail"); err != nil {
		t.Fatalf("run mustfail failed: %v", err)
	}

	err := env.execute(t, "run", "check", "--config", env.configPath, env.tool, "fail")
	if class, ok := outcome.ClassOf(err); !ok || class != outcome.UnexpectedFailure {
		t.Fatalf("expected unexpected-failure, got %v", err)
	}
	if cli.ExitCode(err) != outcome.ExitFailed {
		t.Errorf("exit code = %d", cli.ExitCode(err))
	}

	log := env.results(t)
	for _, want := range []string{
		"====== RUN CHECK " + env.tool + " version",
		"====== RUN MAYFAIL " + env.tool + " fail",
		"failed (ignored, ret=1): " + env.tool + " fail",
		"failed (expected): fail subcommand rejected",
		"failed: " + env.tool + " fail",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("results log missing %q:\n%s", want, log)
		}
	}
}

func TestRunMustFailMisuse(t *testing.T) {
	env := newEnvironment(t)

	err := env.execute(t, "run", "mustfail", "--config", env.configPath, env.tool, "check")
	if !outcome.IsAssertion(err) {
		t.Fatalf("expected assertion, got %v", err)
	}
	if cli.ExitCode(err) != outcome.ExitAssertion {
		t.Errorf("exit code = %d", cli.ExitCode(err))
	}

	err = env.execute(t, "run", "mustfail", "--config", env.configPath)
	if cli.ExitCode(err) != outcome.ExitFailed {
		t.Errorf("missing message: exit code = %d (%v)", cli.ExitCode(err), err)
	}
}

func TestRunPrivileged(t *testing.T) {
	env := newEnvironment(t)
	if err := env.execute(t, "run", "check", "--config", env.configPath, "--privileged", env.tool, "version"); err != nil {
		t.Fatalf("privileged run failed: %v", err)
	}
	if !strings.Contains(env.results(t), "fake-sudo "+env.tool+" version") {
		t.Errorf("privileged command not wrapped:\n%s", env.results(t))
	}
}

func TestImageCheckAll(t *testing.T) {
	env := newEnvironment(t)
	images := filepath.Join(env.root, "images")
	if err := os.Mkdir(images, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	for _, name := range []string{"one.raw", "two.raw"} {
		if err := os.WriteFile(filepath.Join(images, name), []byte("corrupt\n"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	if err := env.execute(t, "image", "check-all", "--config", env.configPath, images); err != nil {
		t.Fatalf("image check-all failed: %v", err)
	}
	if err := env.execute(t, "image", "check-all", "--config", env.configPath, filepath.Join(env.root, "missing")); !outcome.IsAssertion(err) {
		t.Fatalf("missing directory: expected assertion, got %v", err)
	}
}

func TestLoopCycle(t *testing.T) {
	env := newEnvironment(t)
	if err := env.execute(t, "loop", "cycle", "--config", env.configPath, "--count", "3"); err != nil {
		t.Fatalf("loop cycle failed: %v", err)
	}
	entries, err := os.ReadDir(env.losetupDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d loop devices left attached", len(entries))
	}
	matches, _ := filepath.Glob(filepath.Join(env.root, "img*"))
	if len(matches) != 0 {
		t.Errorf("backing files left: %v", matches)
	}
	if err := env.execute(t, "loop", "cycle", "--config", env.configPath, "--count", "0"); !outcome.IsAssertion(err) {
		t.Errorf("count 0: expected assertion, got %v", err)
	}
}

func TestDeviceRequireNotApplicable(t *testing.T) {
	env := newEnvironment(t)
	err := env.execute(t, "device", "require", "--config", env.configPath, "--helper", "fssum")
	if !outcome.IsNotApplicable(err) {
		t.Fatalf("expected not-applicable, got %v", err)
	}
	if cli.ExitCode(err) != outcome.ExitPassed {
		t.Errorf("exit code = %d", cli.ExitCode(err))
	}
}

func TestRenderCheckSummary(t *testing.T) {
	checked := []image.Checked{
		{Image: &image.Image{Path: "/d/a.raw", Format: image.FormatRaw}, Elapsed: 1500 * time.Millisecond},
		{Image: &image.Image{Path: "/d/b.img.xz", Format: image.FormatMetaDumpCompressed}, Elapsed: time.Second},
	}
	failed := &image.Image{Path: "/d/c.img", Format: image.FormatMetaDump}

	summary := renderCheckSummary("/d", checked, failed)
	for _, want := range []string{"a.raw", "b.img.xz", "c.img", "PASS", "FAIL", "metadump-compressed", "2 of 3 passed"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
