// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for fsharness packages.
//
// [FakeTool] writes a small /bin/sh script into a test temp directory
// and returns its path. Harness tests run these scripts as real
// subprocesses instead of mocking exec: the harness classifies on exit
// status alone, so a script that exits 2, 134 or 139 on demand
// exercises exactly the code paths a misbehaving tool would.
// [CallLog] pairs with it: scripts append their argv to a file so a
// test can assert what was executed, in what order.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no fsharness-internal dependencies.
package testutil
