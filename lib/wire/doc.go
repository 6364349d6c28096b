// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the on-disk format of the canvasbridge file
// protocol: request kinds, correlation ids, file names, and the
// request and response bodies.
//
// Every call is a set of files in one shared directory, all named
// after the same correlation id:
//
//	fetch_n1_1767261600000.request     written by the requester
//	fetch_n1_1767261600000.processing  the request after the responder claimed it
//	fetch_n1_1767261600000.response    written by the responder
//
// check_document and fetch requests carry the node id and timestamp on
// two lines. open requests and all responses are JSON objects. Path
// fields inside bodies are in the writer's filesystem namespace; the
// reader translates them (see lib/pathmap).
//
// The package does no I/O. lib/dropdir owns the directory and
// lib/requester and lib/responder own each side of a call.
package wire
