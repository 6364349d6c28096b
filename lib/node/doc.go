// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node is the pipeline side of the bridge: the operations a
// generation pipeline runs to pull the editor's canvas in and to push
// a generated image out.
//
// [FetchNode] asks the editor for its canvas and selection and loads
// them as images. [SendNode] writes an image into the shared
// directory and asks the editor to open it. Neither returns an error
// for protocol failures: an unreachable editor, a timeout or a failed
// request degrades to passing the input through, and the user is told
// through a [Notifier].
package node
