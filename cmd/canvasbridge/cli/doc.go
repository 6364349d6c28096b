// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind the canvasbridge binary:
// subcommand dispatch, pflag parsing with typo suggestions, and help
// output.
package cli
