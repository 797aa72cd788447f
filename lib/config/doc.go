// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the inputs the harness reads but never writes:
// where the results log goes, which tool is under test, where its
// helper binaries live, the test device and mount point, and the
// suite-wide argument override table.
//
// Configuration comes from one file, named by the --config flag or
// the FSHARNESS_CONFIG environment variable. Files ending in .json or
// .jsonc are parsed as JSON with comments; anything else is YAML.
// After the file is merged over [Default], the classic test-suite
// environment variables (RESULTS, TEST_DEV, TEST_MNT,
// TEST_ENABLE_OVERRIDE, TEST_ARGS_<SUBCOMMAND>, ...) are applied on
// top so that a suite runner can steer individual runs without
// editing the file. ${VAR} and ${VAR:-default} references in path
// values are expanded last.
package config
