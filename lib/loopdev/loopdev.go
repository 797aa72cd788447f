// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loopdev manages a numbered set of loop devices backed by
// sparse files, for tests that need several block devices without
// dedicated disks.
//
// The lifecycle is Setup(count), Prepare, Cleanup. Setup only sizes
// the set. Prepare creates backing file "<prefix>N" for N in 1..count
// at a fixed sparse size and attaches each to the next free loop
// device through the privileged runner, recording the device path at
// index N. Cleanup detaches every recorded device, truncates and
// removes every backing file, and lists the attachments that remain
// for the results log. Detach is attempted for every device even when
// an earlier one fails, so one stuck device never leaks the rest.
//
// Callers defer Cleanup right after Setup: it copes with a Prepare
// that stopped halfway.
package loopdev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

// Config holds configuration for creating a Manager.
type Config struct {
	// Runner executes losetup. Required.
	Runner *runner.Runner

	// Program is the loop control program. Default: losetup.
	Program string

	// Prefix is the backing file path prefix. Required.
	Prefix string

	// Size is the sparse size of each backing file in bytes.
	// Required.
	Size int64

	// Logger for lifecycle messages. Default: slog.Default().
	Logger *slog.Logger
}

// Manager owns one loop device set.
type Manager struct {
	runner  *runner.Runner
	program string
	prefix  string
	size    int64
	logger  *slog.Logger

	count   int
	devices []string // devices[i] is device i+1; "" until attached
}

// New creates a Manager. The set is empty until Setup.
func New(config Config) (*Manager, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if config.Prefix == "" {
		return nil, fmt.Errorf("backing file prefix is required")
	}
	if config.Size <= 0 {
		return nil, fmt.Errorf("backing file size must be positive, got %d", config.Size)
	}
	program := config.Program
	if program == "" {
		program = "losetup"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner:  config.Runner,
		program: program,
		prefix:  config.Prefix,
		size:    config.Size,
		logger:  logger,
	}, nil
}

// Setup sizes the set to count devices, all unattached.
func (m *Manager) Setup(count int) error {
	if count < 1 {
		return outcome.Assertf("loop device setup needs a positive count, got %d", count)
	}
	if m.attached() > 0 {
		return outcome.Assertf("loop device setup called with %d devices still attached", m.attached())
	}
	m.count = count
	m.devices = make([]string, count)
	return nil
}

// Count returns the size of the set.
func (m *Manager) Count() int { return m.count }

// BackingFile returns the backing file path for device index (1-based).
func (m *Manager) BackingFile(index int) string {
	return fmt.Sprintf("%s%d", m.prefix, index)
}

// Prepare creates the backing files and attaches them.
func (m *Manager) Prepare(ctx context.Context) error {
	if m.count == 0 {
		return outcome.Assertf("loop device prepare called before setup")
	}

	for index := 1; index <= m.count; index++ {
		if err := m.createBackingFile(m.BackingFile(index)); err != nil {
			return err
		}
	}

	for index := 1; index <= m.count; index++ {
		result, err := m.runner.CheckStdout(ctx, runner.Privileged(m.program, "--find", "--show", m.BackingFile(index)))
		if err != nil {
			return fmt.Errorf("attaching %s: %w", m.BackingFile(index), err)
		}
		device := strings.TrimSpace(string(result.Output))
		if device == "" {
			return fmt.Errorf("attaching %s: %s printed no device path", m.BackingFile(index), m.program)
		}
		if slices.Contains(m.devices, device) {
			return fmt.Errorf("attaching %s: device %s already in the set", m.BackingFile(index), device)
		}
		m.devices[index-1] = device
		m.logger.Info("loop device attached",
			"index", index,
			"device", device,
			"backing_file", m.BackingFile(index),
			"size", humanize.IBytes(uint64(m.size)),
		)
	}
	return nil
}

// createBackingFile creates path, or empties an existing one, then
// extends it to the configured size without allocating blocks.
func (m *Manager) createBackingFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return fmt.Errorf("creating backing file: %w", err)
	}
	defer file.Close()

	// The privileged side writes to these files.
	if err := file.Chmod(0o666); err != nil {
		return fmt.Errorf("chmod backing file %s: %w", path, err)
	}
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("emptying backing file %s: %w", path, err)
	}
	if err := file.Truncate(m.size); err != nil {
		return fmt.Errorf("sizing backing file %s: %w", path, err)
	}
	return nil
}

// Device returns the device path at index (1-based), or "" if that
// index is not attached.
func (m *Manager) Device(index int) string {
	if index < 1 || index > len(m.devices) {
		return ""
	}
	return m.devices[index-1]
}

// Devices returns the attached device paths in index order.
func (m *Manager) Devices() []string {
	var devices []string
	for _, device := range m.devices {
		if device != "" {
			devices = append(devices, device)
		}
	}
	return devices
}

func (m *Manager) attached() int {
	return len(m.Devices())
}

// Cleanup detaches every recorded device and deletes every backing
// file. All steps are attempted; the returned error joins every
// failure.
func (m *Manager) Cleanup(ctx context.Context) error {
	var errs []error

	for index, device := range m.devices {
		if device == "" {
			continue
		}
		if _, err := m.runner.Check(ctx, runner.Privileged(m.program, "-d", device)); err != nil {
			errs = append(errs, fmt.Errorf("detaching %s: %w", device, err))
			continue
		}
		m.devices[index] = ""
	}

	for index := 1; index <= m.count; index++ {
		path := m.BackingFile(index)
		if err := os.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("emptying backing file %s: %w", path, err))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing backing file %s: %w", path, err))
		}
	}

	// Whatever is still attached, on this set or elsewhere, goes into
	// the results log for diagnosis.
	if _, err := m.runner.MayFail(ctx, runner.Privileged(m.program, "--all")); err != nil {
		errs = append(errs, fmt.Errorf("listing loop devices: %w", err))
	}

	if len(errs) == 0 {
		m.logger.Info("loop devices cleaned up", "count", m.count)
	}
	return errors.Join(errs...)
}
