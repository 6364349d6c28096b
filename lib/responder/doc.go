// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package responder answers canvasbridge requests on the editor side.
//
// A [Responder] owns one shared directory. On start it sweeps stale
// requests left by a previous session and writes the presence flag.
// While running, every directory change (kernel notification or the
// periodic fallback tick) arms a single debounce timer; when it fires,
// one scan lists request files kind by kind (check_document, fetch,
// open), claims each by renaming it to .processing, runs the handler,
// writes the response, and deletes the claimed file.
//
// All editor calls happen on one goroutine, the event loop inside
// [Responder.Run]. Timers never block that loop: the debounce and the
// post-open layer setup are clock callbacks that post work onto it.
//
// Open requests are guarded twice. The rename claim prevents two scans
// from handling the same file. A process-lifetime set of handled open
// request names catches a requester re-delivering the same call after
// the first copy was consumed: the duplicate is removed (and answered
// when it asks for a reply) without opening a second document.
package responder
