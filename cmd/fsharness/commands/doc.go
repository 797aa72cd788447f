// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the fsharness command tree. Each leaf
// command loads the configuration, opens a harness session, and calls
// one harness operation.
package commands
