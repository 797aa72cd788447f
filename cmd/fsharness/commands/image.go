// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/lib/image"
	"github.com/bureau-foundation/fsharness/lib/outcome"
)

func imageCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "image",
		Summary: "Extract packed images and run the corruption round-trip",
		Subcommands: []*cli.Command{
			imageExtractCommand(logger),
			imageCheckCommand(logger),
			imageCheckAllCommand(logger),
		},
	}
}

func imageExtractCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	return &cli.Command{
		Name:    "extract",
		Summary: "Produce the working copy of a packed image",
		Usage:   "fsharness image extract [flags] <image>",
		Description: `Extract a packed image (.raw, .img, .stream, optionally .xz, .zst,
.lz4 or .gz compressed) to "<name>.restored" and print its path. An
existing working copy is reused.`,
		Flags: func() *pflag.FlagSet { return newFlagSet("extract", &session) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("extract requires exactly one image path")
			}
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			restored, err := harnessSession.Images().Extract(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(restored)
			return nil
		},
	}
}

func imageCheckCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	return &cli.Command{
		Name:    "check",
		Summary: "Detect, repair and verify a corrupt working copy",
		Usage:   "fsharness image check [flags] <restored-image>",
		Flags:   func() *pflag.FlagSet { return newFlagSet("check", &session) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("check requires exactly one image path")
			}
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			return harnessSession.Images().Check(ctx, args[0])
		},
	}
}

func imageCheckAllCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	var keep bool
	return &cli.Command{
		Name:    "check-all",
		Summary: "Extract and check every image in a directory",
		Usage:   "fsharness image check-all [flags] <directory>",
		Description: `Extract, check and remove the working copy of every raw and
metadata-dump image in a directory, in sorted order. Stops at the
first failure.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("check-all", &session)
			flagSet.BoolVar(&keep, "keep-failed", false, "keep the working copy of the image that failed")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("check-all requires exactly one directory")
			}
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			pipeline := harnessSession.Images()
			checker := func(ctx context.Context, restored string) error {
				err := pipeline.Check(ctx, restored)
				if err != nil && !keep {
					os.Remove(restored)
				}
				return err
			}

			checked, err := pipeline.CheckAll(ctx, args[0], checker)
			if outcome.IsAssertion(err) {
				return err
			}
			var failed *image.Image
			if err != nil {
				failed = nextImage(args[0], checked)
			}
			fmt.Print(renderCheckSummary(args[0], checked, failed))
			return err
		},
	}
}

// nextImage returns the image CheckAll was working on when it
// stopped, or nil if it cannot be determined.
func nextImage(directory string, checked []image.Checked) *image.Image {
	images, err := image.Find(directory)
	if err != nil || len(checked) >= len(images) {
		return nil
	}
	return images[len(checked)]
}
