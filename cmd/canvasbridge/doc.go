// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Canvasbridge is the pipeline side of the bridge. Its subcommands
// talk to a running canvasbridge-responder through the shared
// directory:
//
//	canvasbridge check              exit 0 when the editor has a document
//	canvasbridge probe              exit 0 when the editor answers
//	canvasbridge wait               block until the editor answers
//	canvasbridge fetch -o out.png   export the editor's canvas
//	canvasbridge send image.png     open an image in the editor
//
// Every subcommand reads the file named by CANVASBRIDGE_CONFIG, or the
// one passed with --config, and accepts --directory to override the
// shared directory.
package main
