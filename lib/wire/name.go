// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// File name suffixes. A request moves from SuffixRequest to
// SuffixProcessing when claimed; the answer uses SuffixResponse.
const (
	SuffixRequest    = ".request"
	SuffixProcessing = ".processing"
	SuffixResponse   = ".response"
)

// CorrelationID identifies one call. The node id names the logical
// caller; the millisecond timestamp separates repeated calls from the
// same caller.
type CorrelationID struct {
	NodeID    string
	Timestamp int64
}

// NewCorrelationID stamps nodeID with now in Unix milliseconds.
func NewCorrelationID(nodeID string, now time.Time) CorrelationID {
	return CorrelationID{NodeID: nodeID, Timestamp: now.UnixMilli()}
}

// String renders the id as it appears inside file names.
func (id CorrelationID) String() string {
	return id.NodeID + "_" + strconv.FormatInt(id.Timestamp, 10)
}

// Validate checks that the id can be embedded in a file name.
func (id CorrelationID) Validate() error {
	if err := ValidateNodeID(id.NodeID); err != nil {
		return err
	}
	if id.Timestamp < 0 {
		return fmt.Errorf("negative timestamp %d", id.Timestamp)
	}
	return nil
}

// ValidateNodeID rejects node ids that would break file naming: empty
// ids, path separators, NUL and whitespace. Underscores are allowed;
// ParseFileName splits at the last one.
func ValidateNodeID(nodeID string) error {
	if nodeID == "" {
		return errors.New("node id is empty")
	}
	for _, r := range nodeID {
		if r == '/' || r == '\\' || r == 0 || unicode.IsSpace(r) {
			return fmt.Errorf("node id %q contains %q", nodeID, r)
		}
	}
	return nil
}

// FileName builds "<kind>_<node_id>_<timestamp><suffix>".
func FileName(kind Kind, id CorrelationID, suffix string) string {
	return string(kind) + "_" + id.String() + suffix
}

// Name is a parsed protocol file name.
type Name struct {
	Kind   Kind
	ID     CorrelationID
	Suffix string
}

// String renders the name back into a file name.
func (n Name) String() string { return FileName(n.Kind, n.ID, n.Suffix) }

// WithSuffix returns the same call's file name with a different suffix.
func (n Name) WithSuffix(suffix string) string { return FileName(n.Kind, n.ID, suffix) }

// ErrNotProtocolFile is returned by ParseFileName for names that do
// not follow the protocol's naming. Callers listing the directory
// skip such files.
var ErrNotProtocolFile = errors.New("not a protocol file name")

// ParseFileName splits a protocol file name. The kind is matched as a
// known prefix, the suffix as one of the three known suffixes, and the
// remainder is split at its last underscore into node id and
// timestamp.
func ParseFileName(fileName string) (Name, error) {
	var suffix string
	for _, candidate := range []string{SuffixRequest, SuffixProcessing, SuffixResponse} {
		if strings.HasSuffix(fileName, candidate) {
			suffix = candidate
			break
		}
	}
	if suffix == "" {
		return Name{}, fmt.Errorf("%w: %q has no known suffix", ErrNotProtocolFile, fileName)
	}
	stem := strings.TrimSuffix(fileName, suffix)

	var kind Kind
	for _, candidate := range DispatchOrder {
		if strings.HasPrefix(stem, string(candidate)+"_") {
			kind = candidate
			break
		}
	}
	if kind == "" {
		return Name{}, fmt.Errorf("%w: %q has no known kind prefix", ErrNotProtocolFile, fileName)
	}

	id, err := parseCorrelationID(strings.TrimPrefix(stem, string(kind)+"_"))
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrNotProtocolFile, fileName, err)
	}
	return Name{Kind: kind, ID: id, Suffix: suffix}, nil
}

func parseCorrelationID(text string) (CorrelationID, error) {
	separator := strings.LastIndexByte(text, '_')
	if separator < 0 {
		return CorrelationID{}, errors.New("missing timestamp")
	}
	nodeID, timestampText := text[:separator], text[separator+1:]
	if timestampText == "" || strings.TrimLeft(timestampText, "0123456789") != "" {
		return CorrelationID{}, fmt.Errorf("timestamp %q is not a decimal number", timestampText)
	}
	timestamp, err := strconv.ParseInt(timestampText, 10, 64)
	if err != nil {
		return CorrelationID{}, fmt.Errorf("timestamp %q: %w", timestampText, err)
	}
	id := CorrelationID{NodeID: nodeID, Timestamp: timestamp}
	if err := id.Validate(); err != nil {
		return CorrelationID{}, err
	}
	return id, nil
}
