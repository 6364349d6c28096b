// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/xid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// sendDomainKey separates send digests from any other use of BLAKE3
// on the same pixels.
var sendDomainKey = [32]byte{
	'c', 'a', 'n', 'v', 'a', 's', 'b', 'r', 'i', 'd', 'g', 'e', '.', 's', 'e', 'n',
	'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// SendConfig configures a SendNode.
type SendConfig struct {
	// Bridge talks to the editor. Required.
	Bridge Bridge

	// Directory is the shared directory the image is written into.
	// Required.
	Directory *dropdir.Directory

	// Notifier receives user-facing outcomes. Nil drops them.
	Notifier Notifier

	// Clock stamps the written file names. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// SendNode pushes a pipeline image to the editor.
type SendNode struct {
	bridge    Bridge
	directory *dropdir.Directory
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
}

// NewSendNode validates config and returns a SendNode.
func NewSendNode(config SendConfig) (*SendNode, error) {
	var errs []error
	if config.Bridge == nil {
		errs = append(errs, errors.New("node: Bridge is required"))
	}
	if config.Directory == nil {
		errs = append(errs, errors.New("node: Directory is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	node := &SendNode{
		bridge:    config.Bridge,
		directory: config.Directory,
		notifier:  config.Notifier,
		clock:     config.Clock,
		logger:    config.Logger,
	}
	if node.notifier == nil {
		node.notifier = NotifierFunc(func(string, Level, string) {})
	}
	if node.clock == nil {
		node.clock = clock.Real()
	}
	if node.logger == nil {
		node.logger = slog.New(slog.DiscardHandler)
	}
	return node, nil
}

// SendInput is one execution of the send node.
type SendInput struct {
	// NodeID names the node's files and requests. Empty means a fresh
	// "send-" id per call.
	NodeID string

	Image image.Image

	// Mask crops Image to its selected part. May be nil.
	Mask *image.Gray

	Disabled bool

	// AutoOpen asks the editor to open the image. Without it the image
	// is only saved.
	AutoOpen bool

	LayerPosition wire.LayerPosition
	Alignment     wire.Alignment

	// Reply waits for the editor to confirm the open.
	Reply bool
}

// SendOutput describes what the node did.
type SendOutput struct {
	// ImagePath and MaskPath are the written files, in this host's
	// namespace. MaskPath is empty without a mask.
	ImagePath string
	MaskPath  string

	// Digest is the content key used to suppress repeated sends.
	Digest string

	// Requested is true when an open request was written or answered.
	Requested bool

	// Suppressed is true when the same content was sent moments ago.
	Suppressed bool

	// Response is the editor's answer when Reply was set.
	Response *wire.Response
}

// Process saves the image into the shared directory and, when asked,
// requests the editor open it. The returned error is set only when the
// image could not be saved; an unreachable editor is reported through
// the notifier.
func (n *SendNode) Process(ctx context.Context, input SendInput) (SendOutput, error) {
	nodeID := input.NodeID
	if nodeID == "" {
		nodeID = "send-" + xid.New().String()
	}
	logger := n.logger.With("node_id", nodeID)

	if input.Disabled {
		n.notifier.Notify(nodeID, LevelInfo, "node disabled, image not sent")
		return SendOutput{}, nil
	}
	if err := wire.ValidateNodeID(nodeID); err != nil {
		return SendOutput{}, err
	}
	if input.Image == nil {
		return SendOutput{}, errors.New("no image to send")
	}
	if input.LayerPosition == "" {
		input.LayerPosition = wire.LayerNewDocument
	}
	if input.Alignment == "" {
		input.Alignment = wire.AlignCenter
	}

	var prepared *image.NRGBA
	if input.Mask != nil {
		prepared = pixel.CropToMask(input.Image, input.Mask)
	} else {
		prepared = imaging.Clone(input.Image)
	}

	n.removeOldFiles(nodeID, logger)

	stamp := strconv.FormatInt(n.clock.Now().UnixMilli(), 10)
	output := SendOutput{Digest: Digest(prepared)}
	var err error
	output.ImagePath, err = pixel.WritePNG(n.directory, "send_"+nodeID+"_"+stamp+".png", prepared)
	if err != nil {
		n.notifier.Notify(nodeID, LevelError, "could not save the image, nothing sent")
		return SendOutput{}, fmt.Errorf("saving image: %w", err)
	}
	if input.Mask != nil {
		output.MaskPath, err = pixel.WritePNG(n.directory, "send_"+nodeID+"_"+stamp+"_mask.png", input.Mask)
		if err != nil {
			logger.Warn("saving mask, sending without it", "error", err)
			output.MaskPath = ""
		}
	}
	logger.Info("saved image to the shared directory", "image_path", output.ImagePath, "mask_path", output.MaskPath)

	if !input.AutoOpen {
		n.notifier.Notify(nodeID, LevelInfo, "image saved to "+output.ImagePath)
		return output, nil
	}
	if !n.bridge.IsPeerAlive(ctx) {
		n.notifier.Notify(nodeID, LevelWarning, "image saved, but the editor is not running: "+output.ImagePath)
		return output, nil
	}

	receipt, err := n.bridge.Open(ctx, nodeID, wire.OpenPayload{
		ImagePath:     output.ImagePath,
		MaskPath:      output.MaskPath,
		LayerPosition: input.LayerPosition,
		Alignment:     input.Alignment,
		AutoOpen:      true,
		Reply:         input.Reply,
	}, requester.OpenOptions{DedupKey: output.Digest})
	output.Response = receipt.Response
	output.Suppressed = receipt.Suppressed
	switch {
	case err != nil:
		logger.Warn("open request failed", "error", err)
		n.notifier.Notify(nodeID, LevelWarning, "image saved, but the editor was not told to open it")
	case receipt.Suppressed:
		n.notifier.Notify(nodeID, LevelInfo, "the same image was sent moments ago, skipped")
	default:
		output.Requested = true
		n.notifier.Notify(nodeID, LevelSuccess, fmt.Sprintf("image sent to the editor (%s, %s)", input.LayerPosition, input.Alignment))
	}
	return output, nil
}

// removeOldFiles deletes earlier sends of the same node so the shared
// directory holds one image per node. Files of nodes whose id merely
// starts with nodeID and an underscore are left alone.
func (n *SendNode) removeOldFiles(nodeID string, logger *slog.Logger) {
	names, err := n.directory.Glob("send_*.png")
	if err != nil {
		logger.Warn("listing earlier sends", "error", err)
		return
	}
	for _, name := range names {
		if !isSendOf(name, nodeID) {
			continue
		}
		if err := n.directory.Remove(name); err != nil {
			logger.Warn("removing earlier send", "file", name, "error", err)
		}
	}
}

// isSendOf reports whether name is "send_<nodeID>_<ms>.png" or
// "send_<nodeID>_<ms>_mask.png". The id is compared literally, so glob
// metacharacters in it match only themselves.
func isSendOf(name, nodeID string) bool {
	stamp, ok := strings.CutPrefix(name, "send_"+nodeID+"_")
	if !ok {
		return false
	}
	stamp = strings.TrimSuffix(stamp, ".png")
	stamp = strings.TrimSuffix(stamp, "_mask")
	if stamp == "" {
		return false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Digest is the keyed BLAKE3 digest of an image's size and pixels, in
// hex.
func Digest(img *image.NRGBA) string {
	hasher, err := blake3.NewKeyed(sendDomainKey[:])
	if err != nil {
		// Only reachable with a key that is not 32 bytes.
		panic(err)
	}
	var size [16]byte
	binary.LittleEndian.PutUint64(size[:8], uint64(img.Rect.Dx()))
	binary.LittleEndian.PutUint64(size[8:], uint64(img.Rect.Dy()))
	hasher.Write(size[:])
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		offset := img.PixOffset(img.Rect.Min.X, y)
		hasher.Write(img.Pix[offset : offset+4*img.Rect.Dx()])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
