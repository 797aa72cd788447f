// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testdev manages the scratch device tests format and mount,
// and the host preconditions tests depend on.
//
// The device is either a block device, which is used as is, or a
// regular file that Prepare creates and sizes. Mount and Unmount go
// through the privileged runner. RequireHelper and
// RequireKernelSupport report missing preconditions as
// not-applicable results.
package testdev

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/fsharness/lib/outcome"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

// Config holds configuration for creating a Device.
type Config struct {
	// Runner executes mount and umount. Required.
	Runner *runner.Runner

	// Path is the test device. Required.
	Path string

	// MountPoint is where the device is mounted. Required.
	MountPoint string

	// HelpersDir is searched by RequireHelper.
	HelpersDir string

	// MountProgram and UnmountProgram default to mount and umount.
	MountProgram   string
	UnmountProgram string

	// SysFS is the directory listing registered filesystems.
	// Default: /sys/fs.
	SysFS string

	// Logger for device operations. Default: slog.Default().
	Logger *slog.Logger
}

// Device is the test device.
type Device struct {
	runner         *runner.Runner
	path           string
	mountPoint     string
	helpersDir     string
	mountProgram   string
	unmountProgram string
	sysfs          string
	logger         *slog.Logger
}

// New creates a Device.
func New(config Config) (*Device, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("test device path is required")
	}
	if config.MountPoint == "" {
		return nil, fmt.Errorf("mount point is required")
	}
	device := &Device{
		runner:         config.Runner,
		path:           config.Path,
		mountPoint:     config.MountPoint,
		helpersDir:     config.HelpersDir,
		mountProgram:   config.MountProgram,
		unmountProgram: config.UnmountProgram,
		sysfs:          config.SysFS,
		logger:         config.Logger,
	}
	if device.mountProgram == "" {
		device.mountProgram = "mount"
	}
	if device.unmountProgram == "" {
		device.unmountProgram = "umount"
	}
	if device.sysfs == "" {
		device.sysfs = "/sys/fs"
	}
	if device.logger == nil {
		device.logger = slog.Default()
	}
	return device, nil
}

// Path returns the device path.
func (d *Device) Path() string { return d.path }

// MountPoint returns the mount point.
func (d *Device) MountPoint() string { return d.mountPoint }

// IsBlockDevice reports whether the device path is a block device.
func (d *Device) IsBlockDevice() bool {
	var stat unix.Stat_t
	if err := unix.Stat(d.path, &stat); err != nil {
		return false
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFBLK
}

// Prepare makes the device ready for mkfs. A regular file is created
// if needed and truncated to size bytes; a block device is left
// alone.
func (d *Device) Prepare(size int64) error {
	if d.IsBlockDevice() {
		d.logger.Debug("test device is a block device", "device", d.path)
		return nil
	}
	if size <= 0 {
		return outcome.Assertf("test device size must be positive, got %d", size)
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("creating test device directory: %w", err)
	}
	file, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating test device: %w", err)
	}
	defer file.Close()
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("sizing test device %s: %w", d.path, err)
	}
	d.logger.Info("test device prepared", "device", d.path, "size", humanize.IBytes(uint64(size)))
	return nil
}

// Mount mounts the device on the mount point, creating the mount
// point if needed. options are passed to mount before the device.
func (d *Device) Mount(ctx context.Context, options ...string) error {
	if err := os.MkdirAll(d.mountPoint, 0o755); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}
	argv := append([]string{d.mountProgram}, options...)
	argv = append(argv, d.path, d.mountPoint)
	if _, err := d.runner.Check(ctx, runner.Privileged(argv...)); err != nil {
		return err
	}
	return nil
}

// Unmount unmounts the mount point. Nothing being mounted there is
// not an error.
func (d *Device) Unmount(ctx context.Context) error {
	_, err := d.runner.MayFail(ctx, runner.Privileged(d.unmountProgram, d.mountPoint))
	return err
}

// RequireHelper returns the path of the named helper binary, or a
// not-applicable error when it has not been built.
func (d *Device) RequireHelper(name string) (string, error) {
	if name == "" {
		return "", outcome.Assertf("helper name is required")
	}
	path := filepath.Join(d.helpersDir, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", outcome.Unavailablef("helper %s not built", name)
	}
	if err != nil {
		return "", fmt.Errorf("stat helper %s: %w", name, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", outcome.Unavailablef("helper %s is not executable", path)
	}
	return path, nil
}

// RequireKernelSupport returns a not-applicable error when the
// running kernel has not registered filesystem.
func (d *Device) RequireKernelSupport(filesystem string) error {
	if filesystem == "" {
		return outcome.Assertf("filesystem name is required")
	}
	if _, err := os.Stat(filepath.Join(d.sysfs, filesystem)); err != nil {
		return outcome.Unavailablef("kernel has no %s support (%s missing)", filesystem, filepath.Join(d.sysfs, filesystem))
	}
	return nil
}
