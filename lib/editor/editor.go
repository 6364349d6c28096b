// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package editor declares what the responder needs from the image
// editor it runs inside. The responder calls these methods from its
// event loop goroutine only, so implementations wrapping a
// single-threaded host API may call it directly.
package editor

import (
	"errors"

	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// ErrNoDocument is returned by operations that need an active document
// when none is open.
var ErrNoDocument = errors.New("no active document")

// DocumentID identifies an open document within one editor session.
type DocumentID string

// Canvas is the flattened pixel content of the active document: 8-bit
// BGRA, row-major, no padding.
type Canvas struct {
	Width  int
	Height int
	Pixels []byte
}

// Selection is the active document's selection at document size:
// one byte per pixel, 0 unselected, 255 selected.
type Selection struct {
	Width  int
	Height int
	Mask   []byte
}

// LayerRequest describes an image added on top of the active
// document.
type LayerRequest struct {
	// MaskPath optionally names a selection mask for the new layer.
	MaskPath string

	// Alignment anchors the layer when its size differs from the
	// document's.
	Alignment wire.Alignment
}

// Editor is the host editor.
type Editor interface {
	// HasActiveDocument reports whether a document is open and active.
	HasActiveDocument() bool

	// Canvas returns the active document's pixels, or ErrNoDocument.
	Canvas() (Canvas, error)

	// Selection returns the active document's selection. ok is false
	// when there is no selection. Returns ErrNoDocument without a
	// document.
	Selection() (selection Selection, ok bool, err error)

	// OpenDocument opens the image at path as a new document and
	// returns its id. activate asks the editor to bring it forward.
	OpenDocument(path string, activate bool) (DocumentID, error)

	// AddLayer adds the image at path as the top layer of the active
	// document and returns that document's id, or ErrNoDocument.
	AddLayer(path string, layer LayerRequest) (DocumentID, error)

	// DocumentOpen reports whether id still refers to an open document.
	DocumentOpen(id DocumentID) bool

	// PrepareDocument runs post-load setup on a document the responder
	// opened: every layer visible, the background layer (or the first
	// paint layer) active.
	PrepareDocument(id DocumentID) error
}
