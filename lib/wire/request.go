// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Request is one decoded request file.
type Request struct {
	Kind Kind
	ID   CorrelationID

	// Open is set for KindOpen and nil otherwise.
	Open *OpenPayload
}

// OpenPayload carries the fields of an open request. Paths are in the
// requester's namespace.
type OpenPayload struct {
	ImagePath string

	// MaskPath is empty when the image has no mask. It is encoded as
	// JSON null.
	MaskPath string

	LayerPosition LayerPosition
	Alignment     Alignment

	// AutoOpen asks the editor to bring the new document forward.
	AutoOpen bool

	// Reply asks the responder to write an open response. Without it
	// the call is fire-and-forget.
	Reply bool
}

// Validate checks the enums and that an image path is present.
func (p *OpenPayload) Validate() error {
	var errs []error
	if p.ImagePath == "" {
		errs = append(errs, errors.New("image_path is empty"))
	}
	if err := p.LayerPosition.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Alignment.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// openDocument is the JSON body of an open request.
type openDocument struct {
	ImagePath     string        `json:"image_path"`
	MaskPath      *string       `json:"mask_path"`
	LayerPosition LayerPosition `json:"layer_position"`
	Alignment     Alignment     `json:"alignment"`
	NodeID        string        `json:"node_id"`
	Timestamp     int64         `json:"timestamp"`
	AutoOpen      bool          `json:"auto_open"`
	Reply         bool          `json:"reply,omitempty"`
}

// EncodeRequest renders the body of a request file.
func EncodeRequest(request Request) ([]byte, error) {
	if err := request.ID.Validate(); err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", request.Kind, err)
	}
	switch request.Kind {
	case KindCheckDocument, KindFetch:
		return []byte(request.ID.NodeID + "\n" + strconv.FormatInt(request.ID.Timestamp, 10) + "\n"), nil
	case KindOpen:
		if request.Open == nil {
			return nil, errors.New("encoding open request: missing payload")
		}
		if err := request.Open.Validate(); err != nil {
			return nil, fmt.Errorf("encoding open request: %w", err)
		}
		document := openDocument{
			ImagePath:     request.Open.ImagePath,
			LayerPosition: request.Open.LayerPosition,
			Alignment:     request.Open.Alignment,
			NodeID:        request.ID.NodeID,
			Timestamp:     request.ID.Timestamp,
			AutoOpen:      request.Open.AutoOpen,
			Reply:         request.Open.Reply,
		}
		if request.Open.MaskPath != "" {
			maskPath := request.Open.MaskPath
			document.MaskPath = &maskPath
		}
		return json.Marshal(document)
	}
	return nil, request.Kind.Validate()
}

// DecodeRequest parses a request body for the call named by name. The
// correlation id inside the body, when present, must match the one in
// the file name.
//
// Open bodies written by older requesters may omit layer_position and
// alignment; those default to new_document and center.
func DecodeRequest(name Name, data []byte) (Request, error) {
	request := Request{Kind: name.Kind, ID: name.ID}
	switch name.Kind {
	case KindCheckDocument, KindFetch:
		lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
		if len(lines) != 2 {
			return Request{}, fmt.Errorf("decoding %s request: want 2 lines, got %d", name.Kind, len(lines))
		}
		nodeID := strings.TrimRight(lines[0], "\r")
		timestamp, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("decoding %s request: timestamp: %w", name.Kind, err)
		}
		if nodeID != name.ID.NodeID || timestamp != name.ID.Timestamp {
			return Request{}, fmt.Errorf("decoding %s request: body id %s_%d does not match file name id %s",
				name.Kind, nodeID, timestamp, name.ID)
		}
		return request, nil

	case KindOpen:
		var document openDocument
		decoder := json.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&document); err != nil {
			return Request{}, fmt.Errorf("decoding open request: %w", err)
		}
		if document.NodeID != "" && (document.NodeID != name.ID.NodeID || document.Timestamp != name.ID.Timestamp) {
			return Request{}, fmt.Errorf("decoding open request: body id %s_%d does not match file name id %s",
				document.NodeID, document.Timestamp, name.ID)
		}
		payload := &OpenPayload{
			ImagePath:     document.ImagePath,
			LayerPosition: document.LayerPosition,
			Alignment:     document.Alignment,
			AutoOpen:      document.AutoOpen,
			Reply:         document.Reply,
		}
		if document.MaskPath != nil {
			payload.MaskPath = *document.MaskPath
		}
		if payload.LayerPosition == "" {
			payload.LayerPosition = LayerNewDocument
		}
		if payload.Alignment == "" {
			payload.Alignment = AlignCenter
		}
		if err := payload.Validate(); err != nil {
			return Request{}, fmt.Errorf("decoding open request: %w", err)
		}
		request.Open = payload
		return request, nil
	}
	return Request{}, name.Kind.Validate()
}
