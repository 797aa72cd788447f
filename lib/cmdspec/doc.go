// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmdspec decides which suite-wide extra arguments a command
// receives and where they go.
//
// A test writes a command the way it would type it:
//
//	btrfs check --repair /dev/loop0
//
// When overrides are enabled, the suite may want every "check" to also
// carry "--mode=lowmem". The extras go immediately after the
// subcommand, so anything the test wrote afterwards still wins:
//
//	sudo -n btrfs check --mode=lowmem --repair /dev/loop0
//
// [InsertionIndex] is the positional rule over a flat argument vector.
// [Build] applies it and produces an [Invocation], which keeps the
// pieces apart (mediator prefix, program, subcommand, injected
// arguments, caller arguments) and renders them in that fixed order,
// so no caller ever does index arithmetic on a rendered command line.
package cmdspec
