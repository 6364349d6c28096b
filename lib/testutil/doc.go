// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for canvasbridge
// packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests never call time.After directly. They
// are the only wall-clock waits in the unit tests; everything else runs
// on a fake clock.
//
// [RequireFile] and [RequireNoFile] poll the drop directory for a file
// to appear or vanish. Filesystem effects produced by another goroutine
// have no channel to wait on, so these poll with a short real interval
// up to a deadline.
//
// All helpers call t.Fatalf on failure.
package testutil
