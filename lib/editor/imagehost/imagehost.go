// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imagehost is a headless [editor.Editor] holding documents in
// memory. The responder daemon runs on it when no real editor is
// attached, and the tests drive the protocol end to end through it.
//
// A document is a stack of layers, each an image with an offset. The
// canvas is the layers composited bottom to top onto a transparent
// background of the document's size. The selection is a gray mask of
// the same size, set with [Host.SetSelection].
package imagehost

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/bureau-foundation/canvasbridge/lib/editor"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
)

// Layer is one image in a document's stack.
type Layer struct {
	Name    string
	Image   *image.NRGBA
	Offset  image.Point
	Visible bool
	Mask    *image.Gray
}

// Document is one open document.
type Document struct {
	ID       editor.DocumentID
	Path     string
	Width    int
	Height   int
	Layers   []*Layer
	Active   int
	Prepared bool
}

// Host is an in-memory editor. Safe for concurrent use.
type Host struct {
	mutex     sync.Mutex
	documents []*Document
	active    *Document
	selection *image.Gray
	nextID    int
	opens     int
	activated int
}

var _ editor.Editor = (*Host)(nil)

// New returns a host with no documents.
func New() *Host { return &Host{} }

// Load opens path as a document the way OpenDocument does, for
// seeding a host before the responder starts.
func (h *Host) Load(path string) (editor.DocumentID, error) {
	return h.OpenDocument(path, false)
}

// SetSelection replaces the active document's selection. A nil mask
// clears it. The mask is scaled to the document size if needed.
func (h *Host) SetSelection(mask *image.Gray) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.active == nil {
		return editor.ErrNoDocument
	}
	if mask == nil {
		h.selection = nil
		return nil
	}
	if mask.Rect.Dx() != h.active.Width || mask.Rect.Dy() != h.active.Height {
		mask = pixel.ToGray(imaging.Resize(mask, h.active.Width, h.active.Height, imaging.Lanczos))
	}
	h.selection = pixel.ToGray(mask)
	return nil
}

// HasActiveDocument reports whether a document is open.
func (h *Host) HasActiveDocument() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.active != nil
}

// Canvas composites the active document.
func (h *Host) Canvas() (editor.Canvas, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.active == nil {
		return editor.Canvas{}, editor.ErrNoDocument
	}
	flattened := imaging.New(h.active.Width, h.active.Height, color.NRGBA{})
	for _, layer := range h.active.Layers {
		if !layer.Visible {
			continue
		}
		var content image.Image = layer.Image
		if layer.Mask != nil {
			content = pixel.CropToMask(layer.Image, layer.Mask)
		}
		flattened = imaging.Overlay(flattened, content, layer.Offset, 1.0)
	}
	width, height, pixels := pixel.ToBGRA(flattened)
	return editor.Canvas{Width: width, Height: height, Pixels: pixels}, nil
}

// Selection returns the active selection.
func (h *Host) Selection() (editor.Selection, bool, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.active == nil {
		return editor.Selection{}, false, editor.ErrNoDocument
	}
	if h.selection == nil {
		return editor.Selection{}, false, nil
	}
	mask := make([]byte, len(h.selection.Pix))
	copy(mask, h.selection.Pix)
	return editor.Selection{Width: h.selection.Rect.Dx(), Height: h.selection.Rect.Dy(), Mask: mask}, true, nil
}

// OpenDocument loads path as a new active document with one
// "background" layer.
func (h *Host) OpenDocument(path string, activate bool) (editor.DocumentID, error) {
	loaded, err := pixel.Load(path, pixel.AlphaKeep)
	if err != nil {
		return "", err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.nextID++
	document := &Document{
		ID:     editor.DocumentID("doc-" + strconv.Itoa(h.nextID)),
		Path:   path,
		Width:  loaded.Rect.Dx(),
		Height: loaded.Rect.Dy(),
		Layers: []*Layer{{Name: "background", Image: loaded, Visible: true}},
	}
	h.documents = append(h.documents, document)
	h.active = document
	h.selection = nil
	h.opens++
	if activate {
		h.activated++
	}
	return document.ID, nil
}

// AddLayer stacks path on the active document at the aligned offset.
func (h *Host) AddLayer(path string, request editor.LayerRequest) (editor.DocumentID, error) {
	loaded, err := pixel.Load(path, pixel.AlphaKeep)
	if err != nil {
		return "", err
	}
	var mask *image.Gray
	if request.MaskPath != "" {
		if mask, err = pixel.LoadMask(request.MaskPath); err != nil {
			return "", err
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.active == nil {
		return "", editor.ErrNoDocument
	}
	offset := pixel.AlignmentOffset(h.active.Width, h.active.Height, loaded.Rect.Dx(), loaded.Rect.Dy(), request.Alignment)
	h.active.Layers = append(h.active.Layers, &Layer{
		Name:    filepath.Base(path),
		Image:   loaded,
		Offset:  offset,
		Visible: true,
		Mask:    mask,
	})
	h.active.Active = len(h.active.Layers) - 1
	return h.active.ID, nil
}

// DocumentOpen reports whether id is among the open documents.
func (h *Host) DocumentOpen(id editor.DocumentID) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.find(id) != nil
}

// PrepareDocument makes every layer visible and activates the layer
// named "background", or the bottom layer when none is.
func (h *Host) PrepareDocument(id editor.DocumentID) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	document := h.find(id)
	if document == nil {
		return fmt.Errorf("document %s is not open", id)
	}
	document.Active = 0
	for index, layer := range document.Layers {
		layer.Visible = true
		if layer.Name == "background" {
			document.Active = index
		}
	}
	document.Prepared = true
	return nil
}

// Close closes a document. The most recently opened remaining document
// becomes active.
func (h *Host) Close(id editor.DocumentID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for index, document := range h.documents {
		if document.ID != id {
			continue
		}
		h.documents = append(h.documents[:index], h.documents[index+1:]...)
		if h.active == document {
			h.active = nil
			h.selection = nil
			if count := len(h.documents); count > 0 {
				h.active = h.documents[count-1]
			}
		}
		return
	}
}

// Documents returns a snapshot of the open documents.
func (h *Host) Documents() []Document {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	snapshot := make([]Document, 0, len(h.documents))
	for _, document := range h.documents {
		copied := *document
		copied.Layers = make([]*Layer, 0, len(document.Layers))
		for _, layer := range document.Layers {
			layerCopy := *layer
			copied.Layers = append(copied.Layers, &layerCopy)
		}
		snapshot = append(snapshot, copied)
	}
	return snapshot
}

// OpenCount returns how many documents OpenDocument has created.
func (h *Host) OpenCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.opens
}

// ActivationCount returns how many OpenDocument calls asked to bring
// the document forward.
func (h *Host) ActivationCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.activated
}

func (h *Host) find(id editor.DocumentID) *Document {
	for _, document := range h.documents {
		if document.ID == id {
			return document
		}
	}
	return nil
}
