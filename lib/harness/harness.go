// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness assembles one test run from its configuration: the
// results log, the privilege mediator, the command runner, and the
// loop device, image and test device helpers built on the runner.
//
// A Session replaces process-wide state. Everything a test needs is
// reached through it, and Close releases what it opened.
package harness

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/fsharness/lib/cmdspec"
	"github.com/bureau-foundation/fsharness/lib/config"
	"github.com/bureau-foundation/fsharness/lib/image"
	"github.com/bureau-foundation/fsharness/lib/loopdev"
	"github.com/bureau-foundation/fsharness/lib/privilege"
	"github.com/bureau-foundation/fsharness/lib/resultlog"
	"github.com/bureau-foundation/fsharness/lib/runner"
	"github.com/bureau-foundation/fsharness/lib/testdev"
)

// Session is one test run.
type Session struct {
	config    *config.Config
	log       *resultlog.Log
	privilege *privilege.Mediator
	runner    *runner.Runner
	loop      *loopdev.Manager
	images    *image.Pipeline
	device    *testdev.Device
}

// New validates cfg, opens the results log and wires the components.
// logger may be nil.
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	log, err := resultlog.Open(cfg.ResultsLog)
	if err != nil {
		return nil, err
	}
	session, err := assemble(cfg, log, logger)
	if err != nil {
		log.Close()
		return nil, err
	}
	return session, nil
}

func assemble(cfg *config.Config, log *resultlog.Log, logger *slog.Logger) (*Session, error) {
	mediator := privilege.NewMediator(privilege.Config{
		Program: cfg.Privilege.Program,
		Helper:  cfg.Privilege.Helper,
		Logger:  logger.With("component", "privilege"),
	})

	run, err := runner.New(runner.Config{
		Log:      log,
		Mediator: mediator,
		Tools:    cmdspec.NewToolSet(append([]string{cfg.Tool}, cfg.ToolNames...)...),
		Spec: &cmdspec.Spec{
			Enabled: cfg.Override.Enabled,
			Args:    cfg.Override.Args,
			Skip:    cfg.SkipFunc(),
		},
		Logger: logger.With("component", "runner"),
	})
	if err != nil {
		return nil, err
	}

	loopSize, err := cfg.LoopSizeBytes()
	if err != nil {
		return nil, err
	}
	loop, err := loopdev.New(loopdev.Config{
		Runner:  run,
		Program: cfg.Loop.Program,
		Prefix:  cfg.Loop.Prefix,
		Size:    loopSize,
		Logger:  logger.With("component", "loopdev"),
	})
	if err != nil {
		return nil, err
	}

	images, err := image.New(image.Config{
		Runner:      run,
		Tool:        cfg.Tool,
		RestoreTool: cfg.HelperPath(cfg.Image.RestoreTool),
		RestoreArgs: cfg.Image.RestoreArgs,
		CheckArgs:   cfg.Image.CheckArgs,
		RepairArgs:  cfg.Image.RepairArgs,
		Logger:      logger.With("component", "image"),
	})
	if err != nil {
		return nil, err
	}

	device, err := testdev.New(testdev.Config{
		Runner:     run,
		Path:       cfg.TestDevice,
		MountPoint: cfg.MountPoint,
		HelpersDir: cfg.HelpersDir,
		Logger:     logger.With("component", "testdev"),
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		config:    cfg,
		log:       log,
		privilege: mediator,
		runner:    run,
		loop:      loop,
		images:    images,
		device:    device,
	}, nil
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.config }

// Log returns the results log.
func (s *Session) Log() *resultlog.Log { return s.log }

// Privilege returns the privilege mediator.
func (s *Session) Privilege() *privilege.Mediator { return s.privilege }

// Runner returns the command runner.
func (s *Session) Runner() *runner.Runner { return s.runner }

// Loop returns the loop device manager.
func (s *Session) Loop() *loopdev.Manager { return s.loop }

// Images returns the image pipeline.
func (s *Session) Images() *image.Pipeline { return s.images }

// TestDevice returns the test device.
func (s *Session) TestDevice() *testdev.Device { return s.device }

// Close closes the results log. Loop devices and mounts are the
// caller's to release before Close.
func (s *Session) Close() error {
	return s.log.Close()
}
