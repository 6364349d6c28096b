// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bridge configuration.
//
// Configuration comes from a single file, named either by the
// CANVASBRIDGE_CONFIG environment variable (via [Load]) or by a
// --config flag (via [LoadFile]). The file is YAML; files ending in
// .json or .jsonc are accepted too, with comments and trailing commas.
// Fields absent from the file keep their [Default] values.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${TMPDIR} and ${VAR:-default} patterns are expanded. This
// lets one file serve hosts that mount the shared directory in
// different places.
//
// The same file configures both endpoints: the responder reads the
// responder section and the requester reads the requester section.
// The translation section is per host, since each side maps the other's
// paths into its own namespace.
package config
