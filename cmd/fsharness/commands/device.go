// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
)

func deviceCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "device",
		Summary: "Prepare, mount and unmount the test device",
		Subcommands: []*cli.Command{
			devicePrepareCommand(logger),
			deviceMountCommand(logger),
			deviceUnmountCommand(logger),
			deviceRequireCommand(logger),
		},
	}
}

func devicePrepareCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	var size string
	return &cli.Command{
		Name:    "prepare",
		Summary: "Create or resize a file-backed test device",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("prepare", &session)
			flagSet.StringVar(&size, "size", "", "device size, e.g. 2GiB (default: test_device_size from config)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Usagef("prepare takes no arguments")
			}
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			var bytes int64
			if size != "" {
				parsed, err := humanize.ParseBytes(size)
				if err != nil {
					return cli.Usagef("--size: %v", err)
				}
				bytes = int64(parsed)
			} else {
				bytes, err = harnessSession.Config().TestDeviceSizeBytes()
				if err != nil {
					return err
				}
			}
			return harnessSession.TestDevice().Prepare(bytes)
		},
	}
}

func deviceMountCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	var options []string
	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the test device on the mount point",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("mount", &session)
			flagSet.StringArrayVarP(&options, "options", "o", nil, "mount options, repeatable")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Usagef("mount takes no arguments")
			}
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			var mountArgs []string
			for _, option := range options {
				mountArgs = append(mountArgs, "-o", option)
			}
			return harnessSession.TestDevice().Mount(ctx, mountArgs...)
		},
	}
}

func deviceUnmountCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	return &cli.Command{
		Name:    "umount",
		Summary: "Unmount the mount point if anything is mounted",
		Flags:   func() *pflag.FlagSet { return newFlagSet("umount", &session) },
		Run: func(ctx context.Context, args []string) error {
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()
			return harnessSession.TestDevice().Unmount(ctx)
		},
	}
}

func deviceRequireCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	var helpers []string
	var filesystems []string
	return &cli.Command{
		Name:    "require",
		Summary: "Exit as not applicable unless helpers and kernel support are present",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("require", &session)
			flagSet.StringSliceVar(&helpers, "helper", nil, "helper binaries that must be built")
			flagSet.StringSliceVar(&filesystems, "kernel", nil, "filesystems the kernel must support")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			device := harnessSession.TestDevice()
			for _, name := range helpers {
				path, err := device.RequireHelper(name)
				if err != nil {
					return err
				}
				fmt.Println(path)
			}
			for _, filesystem := range filesystems {
				if err := device.RequireKernelSupport(filesystem); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
