// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fsharness/cmd/fsharness/cli"
	"github.com/bureau-foundation/fsharness/lib/config"
	"github.com/bureau-foundation/fsharness/lib/harness"
)

// Root returns the fsharness command tree.
func Root(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "fsharness",
		Summary: "Test harness for a filesystem tool",
		Description: `fsharness runs the filesystem tool under test in check, mayfail and
mustfail modes, extracts and round-trips corrupt images, and manages
loop devices and the test device. Every execution is recorded in the
results log.`,
		Subcommands: []*cli.Command{
			runCommand(logger),
			imageCommand(logger),
			loopCommand(logger),
			deviceCommand(logger),
			privilegeCommand(logger),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Require the tool to reject a corrupt image",
				Command:     "fsharness run mustfail 'corrupt superblock detected' ./btrfs check tests/bad.img",
			},
			{
				Description: "Check every image in a directory",
				Command:     "fsharness image check-all tests/fsck-tests/012-leaf-corruption",
			},
		},
	}
}

// sessionFlags are the flags every command that opens a session
// shares.
type sessionFlags struct {
	configPath string
}

func (s *sessionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.configPath, "config", "",
		"configuration file, YAML or JSONC (default: $"+config.EnvConfigPath+" or built-in defaults)")
}

// open loads the configuration and assembles a session.
func (s *sessionFlags) open(logger *slog.Logger) (*harness.Session, error) {
	var cfg *config.Config
	var err error
	if s.configPath != "" {
		cfg, err = config.LoadFile(s.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return harness.New(cfg, logger)
}

func newFlagSet(name string, session *sessionFlags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	session.register(flagSet)
	return flagSet
}
