// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Canvasbridge-responder is the editor side of the bridge, hosting an
// in-process image editor. It sweeps requests left in the shared
// directory, writes the presence flag, and answers check_document,
// fetch and open requests until interrupted.
//
// --open seeds the editor with a document (and --selection its
// selection) so fetch has something to export.
package main
