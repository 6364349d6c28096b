// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package requester issues canvasbridge calls from the pipeline side.
//
// [Requester.Call] is a blocking call stub over the shared directory:
// it writes "<kind>_<node>_<ms>.request", polls for the matching
// .response at the kind's interval until the kind's timeout, waits a
// short grace period once the response appears (the file can become
// visible over a network share before its content has arrived), reads
// and parses it, and removes both files. Every path out of Call
// removes the request; a response is removed once read.
//
// Outcomes are distinguished by error:
//
//   - nil: the responder answered with status success.
//   - [*RemoteError]: the responder answered with status failure.
//   - [ErrTimeout]: no response before the deadline, or a response that
//     could not be parsed. Callers fall back to a default.
//   - [ErrCancelled]: [Requester.Cancel] was called for the node, or
//     the context ended.
//   - anything else: the shared directory itself failed.
//
// Liveness is two-tier: the presence flag is checked first, and only
// when it is absent does [Requester.IsPeerAlive] send an active
// check_document probe. The flag is never invalidated, so a crashed
// responder looks alive until a real call times out.
package requester
