// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the fsharness binary.
//
// [GitCommit], [BuildTime] and [Version] are injected with -ldflags -X.
// When GitCommit is not injected, the VCS revision the Go toolchain
// stamps into the binary is used instead, so "go install" builds
// still identify their commit.
package version
