// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Kind selects the handler on the responder side and the payload shape
// of the request and response.
type Kind string

const (
	// KindCheckDocument asks whether the editor has an active document.
	KindCheckDocument Kind = "check_document"

	// KindFetch asks the editor to export the active canvas and its
	// selection as PNG files in the shared directory.
	KindFetch Kind = "fetch"

	// KindOpen asks the editor to open an image, either as a new
	// document or as a layer on top of the current one.
	KindOpen Kind = "open"
)

// DispatchOrder is the order in which the responder scans for request
// kinds. Cheap status queries go first so a burst of open requests
// never delays a liveness probe.
var DispatchOrder = []Kind{KindCheckDocument, KindFetch, KindOpen}

// IsKnown reports whether k is one of the protocol's kinds.
func (k Kind) IsKnown() bool {
	switch k {
	case KindCheckDocument, KindFetch, KindOpen:
		return true
	}
	return false
}

// Validate returns an error for unknown kinds.
func (k Kind) Validate() error {
	if !k.IsKnown() {
		return fmt.Errorf("unknown request kind %q", string(k))
	}
	return nil
}

// LayerPosition says where an opened image goes.
type LayerPosition string

const (
	// LayerNewDocument opens the image as its own document.
	LayerNewDocument LayerPosition = "new_document"

	// LayerTopOfCurrent adds the image as the topmost layer of the
	// active document. The responder falls back to a new document when
	// nothing is open.
	LayerTopOfCurrent LayerPosition = "top_of_current"
)

// Validate returns an error for values other than the two positions.
func (p LayerPosition) Validate() error {
	switch p {
	case LayerNewDocument, LayerTopOfCurrent:
		return nil
	}
	return fmt.Errorf("unknown layer_position %q", string(p))
}

// Alignment anchors a layer smaller or larger than its document.
type Alignment string

const (
	AlignCenter      Alignment = "center"
	AlignTopLeft     Alignment = "top_left"
	AlignTopRight    Alignment = "top_right"
	AlignBottomLeft  Alignment = "bottom_left"
	AlignBottomRight Alignment = "bottom_right"
)

// Validate returns an error for values other than the five anchors.
func (a Alignment) Validate() error {
	switch a {
	case AlignCenter, AlignTopLeft, AlignTopRight, AlignBottomLeft, AlignBottomRight:
		return nil
	}
	return fmt.Errorf("unknown alignment %q", string(a))
}

// Status is the outcome field of every response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)
