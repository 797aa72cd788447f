// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
)

func privilegeCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "privilege",
		Summary: "Inspect privilege mediation",
		Subcommands: []*cli.Command{
			privilegeProbeCommand(logger),
		},
	}
}

func privilegeProbeCommand(logger *slog.Logger) *cli.Command {
	var session sessionFlags
	return &cli.Command{
		Name:    "probe",
		Summary: "Negotiate privilege and print the session and command prefix",
		Description: `Negotiate privilege the way a test run does and print the result.
Exits 0 with "not applicable" when privilege cannot be obtained.`,
		Flags: func() *pflag.FlagSet { return newFlagSet("probe", &session) },
		Run: func(ctx context.Context, args []string) error {
			harnessSession, err := session.open(logger)
			if err != nil {
				return err
			}
			defer harnessSession.Close()

			mediator := harnessSession.Privilege()
			state, err := mediator.Setup(ctx)
			if err != nil {
				return err
			}
			prefix, err := mediator.Prefix()
			if err != nil {
				return err
			}
			fmt.Printf("session: %s\nprefix: %s\n", state, strings.Join(prefix, " "))
			return nil
		},
	}
}
