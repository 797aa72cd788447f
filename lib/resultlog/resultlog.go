// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resultlog writes the persistent, append-only results log
// that every harness execution records into. The log is plain text
// meant for post-mortem reading: a marker line naming the execution
// mode and the exact command line, then the command's captured
// output, then an outcome line when something did not succeed.
//
// Writes are strictly ordered by call order. A child's stdout and
// stderr are copied by separate goroutines inside os/exec, so the Log
// serializes writes itself.
package resultlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Mode names an execution mode in marker lines.
type Mode string

const (
	ModeCheck    Mode = "CHECK"
	ModeMayFail  Mode = "MAYFAIL"
	ModeMustFail Mode = "MUSTFAIL"
)

// Log is an open results log.
type Log struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
	path   string
}

// Open opens path for appending, creating it and its parent directory
// if needed.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("results log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating results log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening results log: %w", err)
	}
	return &Log{writer: file, closer: file, path: path}, nil
}

// New wraps an arbitrary writer. Close is a no-op.
func New(writer io.Writer) *Log {
	return &Log{writer: writer}
}

// Discard returns a log that drops everything.
func Discard() *Log {
	return New(io.Discard)
}

// Path returns the file path, or "" for writer-backed logs.
func (l *Log) Path() string { return l.path }

// Writer returns the log as an io.Writer, for streaming command
// output. The same value is returned on every call, so os/exec shares
// one pipe when it is used for both stdout and stderr.
func (l *Log) Writer() io.Writer { return l }

// Write appends p to the log.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Write(p)
}

// Marker writes the line that precedes every execution:
//
//	====== RUN CHECK /path/to/tool check /dev/loop0
func (l *Log) Marker(mode Mode, command []string) {
	l.Linef("====== RUN %s %s", mode, Join(command))
}

// Linef writes one formatted line.
func (l *Log) Linef(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	// A failing results log must not change the classification of
	// the command being logged.
	_, _ = io.WriteString(l, line)
}

// Append copies r into the log.
func (l *Log) Append(r io.Reader) error {
	_, err := io.Copy(l, r)
	return err
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Join renders a command line for humans. Arguments that are empty or
// contain whitespace or shell metacharacters are single-quoted so the
// line can be pasted back into a shell.
func Join(command []string) string {
	quoted := make([]string, len(command))
	for i, argument := range command {
		quoted[i] = quote(argument)
	}
	return strings.Join(quoted, " ")
}

func quote(argument string) string {
	if argument == "" {
		return "''"
	}
	if !strings.ContainsAny(argument, " \t\n'\"\\$`;&|<>()*?[]{}!#~") {
		return argument
	}
	return "'" + strings.ReplaceAll(argument, "'", `'\''`) + "'"
}
