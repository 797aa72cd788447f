// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree framework for fsharness: nested
// commands with pflag flag sets, generated help, typo suggestions,
// the operational logger, and the mapping from errors to exit codes.
package cli
