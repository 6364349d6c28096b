// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dropdir owns the shared directory both peers exchange files
// through.
//
// Every file is written whole: data goes to a hidden temporary file in
// the same directory, is fsynced, and is renamed into place. A reader
// that sees a protocol file name therefore sees the complete content
// (subject to the rename semantics of the underlying filesystem, which
// for SMB and 9p shares backing WSL drive mounts are weaker than local
// POSIX; the requester's grace delay covers the gap).
//
// [Directory.Claim] renames a request to its .processing name. Rename
// is the only mutual-exclusion primitive in the protocol: of any number
// of concurrent claims on the same file, one rename succeeds and the
// rest observe ENOENT, which Claim reports as "already taken" rather
// than an error.
//
// [Directory.Remove] is idempotent. Cleanup on both sides is
// best-effort and runs without coordinating with the peer.
package dropdir
