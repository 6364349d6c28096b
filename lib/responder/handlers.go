// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/canvasbridge/lib/editor"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// ExportFileName is the canvas export written for a fetch call.
func ExportFileName(id wire.CorrelationID) string { return "editor_export_" + id.String() + ".png" }

// MaskFileName is the selection export written for a fetch call.
func MaskFileName(id wire.CorrelationID) string { return "editor_mask_" + id.String() + ".png" }

// handleFetch exports the active canvas, and the selection when there
// is one, into the shared directory. The exports are named after the
// call so concurrent fetches never share a file.
func (r *Responder) handleFetch(id wire.CorrelationID) (imagePath, maskPath string, err error) {
	if !r.editor.HasActiveDocument() {
		return "", "", editor.ErrNoDocument
	}
	canvas, err := r.editor.Canvas()
	if err != nil {
		return "", "", fmt.Errorf("reading canvas: %w", err)
	}
	flattened, err := pixel.FromBGRA(canvas.Width, canvas.Height, canvas.Pixels)
	if err != nil {
		return "", "", err
	}
	imagePath, err = pixel.WritePNG(r.directory, ExportFileName(id), flattened)
	if err != nil {
		return "", "", fmt.Errorf("exporting canvas: %w", err)
	}

	selection, ok, err := r.editor.Selection()
	if err != nil {
		return "", "", fmt.Errorf("reading selection: %w", err)
	}
	if !ok {
		return imagePath, "", nil
	}
	mask, err := pixel.GrayFromBytes(selection.Width, selection.Height, selection.Mask)
	if err != nil {
		return "", "", err
	}
	maskPath, err = pixel.WritePNG(r.directory, MaskFileName(id), mask)
	if err != nil {
		return "", "", fmt.Errorf("exporting selection: %w", err)
	}
	return imagePath, maskPath, nil
}

// handleOpen opens or layers the requested image. duplicate is true
// when the image already has an open document from an earlier request
// and nothing new was opened.
func (r *Responder) handleOpen(payload *wire.OpenPayload, logger *slog.Logger) (opened, duplicate bool, err error) {
	imagePath := filepath.Clean(r.peerPaths.Translate(payload.ImagePath))
	if _, err := os.Stat(imagePath); err != nil {
		return false, false, fmt.Errorf("image %s: %w", imagePath, err)
	}
	var maskPath string
	if payload.MaskPath != "" {
		maskPath = filepath.Clean(r.peerPaths.Translate(payload.MaskPath))
	}

	if payload.LayerPosition == wire.LayerTopOfCurrent {
		documentID, err := r.editor.AddLayer(imagePath, editor.LayerRequest{MaskPath: maskPath, Alignment: payload.Alignment})
		if err == nil {
			logger.Info("added image as top layer", "image_path", imagePath, "document", documentID)
			return true, false, nil
		}
		if !errors.Is(err, editor.ErrNoDocument) {
			return false, false, fmt.Errorf("adding layer: %w", err)
		}
		logger.Info("no active document, opening image as a new document", "image_path", imagePath)
	}

	if documentID, ok := r.opened[imagePath]; ok && r.editor.DocumentOpen(documentID) {
		logger.Info("image already open, skipping", "image_path", imagePath, "document", documentID)
		return true, true, nil
	}

	documentID, err := r.editor.OpenDocument(imagePath, payload.AutoOpen)
	if err != nil {
		return false, false, fmt.Errorf("opening document: %w", err)
	}
	r.opened[imagePath] = documentID
	logger.Info("opened image", "image_path", imagePath, "document", documentID)

	r.afterDelay(r.config.LayerSetupDelay, func() {
		if !r.editor.DocumentOpen(documentID) {
			return
		}
		if err := r.editor.PrepareDocument(documentID); err != nil {
			logger.Warn("preparing document layers", "document", documentID, "error", err)
		}
	})
	return true, false, nil
}
