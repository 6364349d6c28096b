// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the bridge
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/canvasbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them the commit and build time are read from the VCS stamp
// in the binary's build info, and "unknown" when there is none.
package version
