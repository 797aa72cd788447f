// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// fsharness drives a filesystem tool through its test suite: it runs
// commands in check, mayfail and mustfail modes, extracts packed
// images and round-trips their corruption through the tool's repair,
// and manages loop devices and the test device.
//
// Usage:
//
//	fsharness run check|check-stdout|mayfail [flags] <command> [args...]
//	fsharness run mustfail|mustfail-stdout [flags] <message> <command> [args...]
//	fsharness image extract|check [flags] <path>
//	fsharness image check-all [flags] <directory>
//	fsharness loop cycle [flags] [-- command [args...]]
//	fsharness device prepare|mount|umount|require [flags]
//	fsharness privilege probe [flags]
//	fsharness version
//
// Exit status is 0 when the test passed or was not applicable, 1 for
// a test failure, crash or usage error, and 2 when the harness was
// called incorrectly. Set FSHARNESS_DEBUG for debug logging.
package main
