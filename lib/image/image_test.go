// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/bureau-foundation/fsharness/lib/cmdspec"
	"github.com/bureau-foundation/fsharness/lib/resultlog"
	"github.com/bureau-foundation/fsharness/lib/runner"
	"github.com/bureau-foundation/fsharness/lib/testutil"
)

// fakeCheckBody behaves like the tool's check on a text image: the
// read-only check fails while the file contains "corrupt", and
// "check --repair" rewrites it to "clean".
const fakeCheckBody = `for last; do :; done
if [ "$2" = "--repair" ]; then
	echo clean > "$last"
	exit 0
fi
if grep -q corrupt "$last"; then
	echo "errors found in $last"
	exit 1
fi
exit 0
`

// fakeRestoreBody copies the dump ($2 after "-r") to the output.
const fakeRestoreBody = `[ "$1" = "-r" ] || exit 9
cp "$2" "$3"
`

type fixture struct {
	pipeline *Pipeline
	log      *bytes.Buffer
	calls    *testutil.CallLog
	tool     string
}

func newFixture(t *testing.T, checkBody, restoreBody string) *fixture {
	t.Helper()
	calls := testutil.NewCallLog(t)
	bin := t.TempDir()
	tool := testutil.FakeToolIn(t, bin, "btrfs", calls.Record()+checkBody)
	restore := testutil.FakeToolIn(t, bin, "btrfs-image", calls.Record()+restoreBody)

	var buffer bytes.Buffer
	run, err := runner.New(runner.Config{
		Log:   resultlog.New(&buffer),
		Tools: cmdspec.NewToolSet(tool),
	})
	if err != nil {
		t.Fatalf("runner.New failed: %v", err)
	}
	pipeline, err := New(Config{
		Runner:      run,
		Tool:        tool,
		RestoreTool: restore,
		RestoreArgs: []string{"-r"},
		CheckArgs:   []string{"check"},
		RepairArgs:  []string{"check", "--repair"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{pipeline: pipeline, log: &buffer, calls: calls, tool: tool}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return data
}

// compress encodes data with the codec.
func compress(t *testing.T, compression Compression, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	var writer io.WriteCloser
	var err error
	switch compression {
	case CompressionXZ:
		writer, err = xz.NewWriter(&buffer)
	case CompressionZstd:
		writer, err = zstd.NewWriter(&buffer)
	case CompressionLZ4:
		writer = lz4.NewWriter(&buffer)
	case CompressionGzip:
		writer = gzip.NewWriter(&buffer)
	default:
		t.Fatalf("no encoder for %s", compression)
	}
	if err != nil {
		t.Fatalf("creating %s encoder: %v", compression, err)
	}
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("%s encode failed: %v", compression, err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("%s close failed: %v", compression, err)
	}
	return buffer.Bytes()
}

// sparseContent is a few MiB of mostly zeros with data at both ends
// and in the middle.
func sparseContent() []byte {
	data := make([]byte, 3<<20)
	copy(data, "superblock")
	copy(data[1<<20+17:], "middle extent")
	copy(data[len(data)-5:], "tail!")
	return data
}

func listDirectory(t *testing.T, directory string) []string {
	t.Helper()
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func requireFile(t *testing.T, path string, want []byte) {
	t.Helper()
	got := readFile(t, path)
	if !bytes.Equal(got, want) {
		t.Fatalf("%s: content differs (got %d bytes, want %d)", filepath.Base(path), len(got), len(want))
	}
}
