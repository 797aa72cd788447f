// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/lib/runner"
)

func loopCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "loop",
		Summary: "Manage loop devices backed by sparse files",
		Subcommands: []*cli.Command{
			loopCycleCommand(logger),
		},
	}
}

func loopCycleCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	var count int
	return &cli.Command{
		Name:    "cycle",
		Summary: "Attach a set of loop devices, then detach them and remove their files",
		Usage:   "fsharness loop cycle [flags] [-- command [args...]]",
		Description: `Attach --count loop devices and print their paths. When a command is
given it runs in check mode with the device paths appended. The
devices are always detached and the backing files removed before
returning.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("cycle", &session)
			flagSet.IntVar(&count, "count", 1, "number of loop devices")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) (err error) {
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			loop := harnessSession.Loop()
			if err := loop.Setup(count); err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, loop.Cleanup(context.WithoutCancel(ctx)))
			}()

			if err := loop.Prepare(ctx); err != nil {
				return err
			}
			for index, device := range loop.Devices() {
				fmt.Printf("%d %s\n", index+1, device)
			}

			if len(args) == 0 {
				return nil
			}
			command := append(append([]string{}, args...), loop.Devices()...)
			_, err = harnessSession.Runner().Check(ctx, runner.Cmd(command...))
			return err
		},
	}
}
