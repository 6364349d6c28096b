// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response is one decoded response file. Fields beyond Status and
// Message are only meaningful for the kind that carries them.
type Response struct {
	Kind Kind
	ID   CorrelationID

	Status  Status
	Message string

	// HasActiveDocument answers check_document.
	HasActiveDocument bool

	// ImagePath and MaskPath answer fetch, in the responder's
	// namespace. MaskPath is empty when there is no selection.
	ImagePath string
	MaskPath  string

	// Opened and Duplicate answer open requests that asked for a reply.
	// Duplicate is set when the image was already open and no new
	// document was created.
	Opened    bool
	Duplicate bool
}

// Succeeded reports whether Status is success.
func (r Response) Succeeded() bool { return r.Status == StatusSuccess }

// responseDocument is the JSON body of every response. Pointer fields
// distinguish "absent" from the zero value so required fields can be
// checked.
type responseDocument struct {
	Status            Status  `json:"status,omitempty"`
	Message           string  `json:"message,omitempty"`
	HasActiveDocument *bool   `json:"has_active_document,omitempty"`
	ImagePath         *string `json:"image_path,omitempty"`
	MaskPath          *string `json:"mask_path,omitempty"`
	Opened            *bool   `json:"opened,omitempty"`
	Duplicate         *bool   `json:"duplicate,omitempty"`
}

// ErrMalformedResponse wraps every DecodeResponse failure.
var ErrMalformedResponse = errors.New("malformed response")

// EncodeResponse renders the body of a response file.
func EncodeResponse(response Response) ([]byte, error) {
	if err := response.Kind.Validate(); err != nil {
		return nil, err
	}
	if response.Status != StatusSuccess && response.Status != StatusFailure {
		return nil, fmt.Errorf("encoding %s response: unknown status %q", response.Kind, response.Status)
	}

	document := responseDocument{Status: response.Status, Message: response.Message}
	if response.Status == StatusSuccess {
		switch response.Kind {
		case KindCheckDocument:
			document.HasActiveDocument = &response.HasActiveDocument
		case KindFetch:
			if response.ImagePath == "" {
				return nil, errors.New("encoding fetch response: success without image_path")
			}
			document.ImagePath = &response.ImagePath
			if response.MaskPath != "" {
				document.MaskPath = &response.MaskPath
			} else {
				// Encoded as explicit null: "no selection".
				return marshalWithNullMask(document)
			}
		case KindOpen:
			document.Opened = &response.Opened
			document.Duplicate = &response.Duplicate
		}
	}
	return json.Marshal(document)
}

// marshalWithNullMask writes a fetch response whose mask_path is an
// explicit null rather than missing.
func marshalWithNullMask(document responseDocument) ([]byte, error) {
	return json.Marshal(struct {
		responseDocument
		MaskPath *string `json:"mask_path"`
	}{responseDocument: document})
}

// DecodeResponse parses a response body for the call named by name.
// Missing required fields are errors wrapping ErrMalformedResponse.
//
// A check_document body without a status field is accepted as success;
// editor plugins that predate the status field write only
// has_active_document.
func DecodeResponse(name Name, data []byte) (Response, error) {
	var document responseDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return Response{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, name, err)
	}

	response := Response{Kind: name.Kind, ID: name.ID, Status: document.Status, Message: document.Message}
	if response.Status == "" && name.Kind == KindCheckDocument && document.HasActiveDocument != nil {
		response.Status = StatusSuccess
	}
	switch response.Status {
	case StatusFailure:
		return response, nil
	case StatusSuccess:
	default:
		return Response{}, fmt.Errorf("%w: %s: status %q", ErrMalformedResponse, name, document.Status)
	}

	switch name.Kind {
	case KindCheckDocument:
		if document.HasActiveDocument == nil {
			return Response{}, fmt.Errorf("%w: %s: missing has_active_document", ErrMalformedResponse, name)
		}
		response.HasActiveDocument = *document.HasActiveDocument
	case KindFetch:
		if document.ImagePath == nil || *document.ImagePath == "" {
			return Response{}, fmt.Errorf("%w: %s: missing image_path", ErrMalformedResponse, name)
		}
		response.ImagePath = *document.ImagePath
		if document.MaskPath != nil {
			response.MaskPath = *document.MaskPath
		}
	case KindOpen:
		if document.Opened != nil {
			response.Opened = *document.Opened
		}
		if document.Duplicate != nil {
			response.Duplicate = *document.Duplicate
		}
	default:
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, name.Kind.Validate())
	}
	return response, nil
}
