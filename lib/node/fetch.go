// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

var (
	// ErrDisabled is the fallback reason of a disabled node.
	ErrDisabled = errors.New("node disabled")

	// ErrPeerUnavailable means the editor could not be reached before
	// the node gave up waiting for it.
	ErrPeerUnavailable = errors.New("editor not reachable")
)

// FileRetry bounds the wait for an exported file to become visible on
// this host after the response naming it arrived.
type FileRetry struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultFileRetry is three looks, one second apart.
func DefaultFileRetry() FileRetry { return FileRetry{Attempts: 3, Interval: time.Second} }

// FetchConfig configures a FetchNode.
type FetchConfig struct {
	// Bridge talks to the editor. Required.
	Bridge Bridge

	// Directory is the shared directory. Exports found inside it are
	// removed once loaded. Nil keeps every export.
	Directory *dropdir.Directory

	// Notifier receives user-facing outcomes. Nil drops them.
	Notifier Notifier

	// Clock paces the file retry. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger

	// FileRetry overrides DefaultFileRetry when Attempts is positive.
	FileRetry FileRetry

	// PeerWait bounds the wait for an editor that is not running yet.
	// Zero uses the bridge's default.
	PeerWait time.Duration
}

// FetchNode pulls the editor's canvas into the pipeline.
type FetchNode struct {
	bridge    Bridge
	directory *dropdir.Directory
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
	retry     FileRetry
	peerWait  time.Duration
}

// NewFetchNode validates config and returns a FetchNode.
func NewFetchNode(config FetchConfig) (*FetchNode, error) {
	if config.Bridge == nil {
		return nil, errors.New("node: Bridge is required")
	}
	node := &FetchNode{
		bridge:    config.Bridge,
		directory: config.Directory,
		notifier:  config.Notifier,
		clock:     config.Clock,
		logger:    config.Logger,
		retry:     config.FileRetry,
		peerWait:  config.PeerWait,
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
	if node.retry.Attempts <= 0 {
		node.retry = DefaultFileRetry()
	}
	return node, nil
}

// FetchInput is one execution of the fetch node.
type FetchInput struct {
	NodeID string

	// Image is passed through when nothing is fetched. May be nil.
	Image image.Image

	// Mask is used when the editor has no selection. May be nil.
	Mask *image.Gray

	Disabled bool

	// AlphaMode is applied to the fetched canvas. Empty keeps alpha.
	AlphaMode pixel.AlphaMode
}

// FetchOutput is the node's result. Image and Mask are always usable:
// on any failure they are the input, with an empty mask filled in.
type FetchOutput struct {
	Image image.Image
	Mask  *image.Gray

	// Fetched is true when Image came from the editor.
	Fetched bool

	// Fallback explains why the input was passed through.
	Fallback error
}

// Process fetches the canvas and selection, or falls back to the
// input.
func (n *FetchNode) Process(ctx context.Context, input FetchInput) FetchOutput {
	logger := n.logger.With("node_id", input.NodeID)
	passThrough := func(reason error) FetchOutput {
		var bounds image.Rectangle
		if input.Image != nil {
			bounds = input.Image.Bounds()
		}
		return FetchOutput{Image: input.Image, Mask: pixel.FinalMask(nil, input.Mask, bounds), Fallback: reason}
	}

	if input.Disabled {
		logger.Debug("fetch node disabled, passing input through")
		return passThrough(ErrDisabled)
	}
	if err := wire.ValidateNodeID(input.NodeID); err != nil {
		n.notifier.Notify(input.NodeID, LevelError, "invalid node id, using input image")
		return passThrough(err)
	}

	if !n.bridge.IsPeerAlive(ctx) {
		logger.Info("editor not detected, waiting for it")
		if !n.bridge.WaitForPeer(ctx, n.peerWait) {
			n.notifier.Notify(input.NodeID, LevelInfo, "editor is not running or the bridge is not loaded, using input image")
			return passThrough(ErrPeerUnavailable)
		}
	}

	result, err := n.bridge.Fetch(ctx, input.NodeID)
	if err != nil {
		n.notifyFetchError(input.NodeID, err)
		logger.Warn("fetch failed, passing input through", "error", err)
		return passThrough(err)
	}
	defer n.removeExports(result, logger)

	if err := n.waitForFile(ctx, result.ImagePath); err != nil {
		n.notifier.Notify(input.NodeID, LevelError, "exported canvas never became visible, using input image")
		logger.Warn("exported canvas missing", "image_path", result.ImagePath, "error", err)
		return passThrough(err)
	}
	canvas, err := pixel.Load(result.ImagePath, input.AlphaMode)
	if err != nil {
		n.notifier.Notify(input.NodeID, LevelError, "could not read the exported canvas, using input image")
		logger.Warn("loading exported canvas", "error", err)
		return passThrough(err)
	}

	var selection *image.Gray
	if result.MaskPath != "" {
		if err := n.waitForFile(ctx, result.MaskPath); err != nil {
			logger.Warn("exported selection missing, continuing without it", "mask_path", result.MaskPath, "error", err)
		} else if selection, err = pixel.LoadMask(result.MaskPath); err != nil {
			logger.Warn("loading exported selection, continuing without it", "error", err)
			selection = nil
		}
	}

	mask := pixel.FinalMask(selection, input.Mask, canvas.Bounds())
	message := fmt.Sprintf("fetched %dx%d canvas from the editor", canvas.Rect.Dx(), canvas.Rect.Dy())
	if !pixel.IsEmpty(selection) {
		message += " with selection"
	}
	n.notifier.Notify(input.NodeID, LevelSuccess, message)
	logger.Info("fetched canvas", "image_path", result.ImagePath, "mask_path", result.MaskPath)
	return FetchOutput{Image: canvas, Mask: mask, Fetched: true}
}

func (n *FetchNode) notifyFetchError(nodeID string, err error) {
	var remote *requester.RemoteError
	switch {
	case errors.Is(err, requester.ErrCancelled):
		n.notifier.Notify(nodeID, LevelInfo, "fetch cancelled, using input image")
	case errors.Is(err, requester.ErrTimeout):
		n.notifier.Notify(nodeID, LevelWarning, "no response from the editor, using input image")
	case errors.As(err, &remote):
		n.notifier.Notify(nodeID, LevelError, "editor could not export the canvas: "+remote.Message)
	default:
		n.notifier.Notify(nodeID, LevelError, "fetch failed, using input image")
	}
}

// waitForFile looks for path up to the retry budget. Shared folders
// can surface a file some time after the response naming it.
func (n *FetchNode) waitForFile(ctx context.Context, path string) error {
	var err error
	for attempt := range n.retry.Attempts {
		if attempt > 0 {
			select {
			case <-n.clock.After(n.retry.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err = os.Stat(path); err == nil {
			return nil
		}
	}
	return err
}

// removeExports deletes the exported files when they are inside the
// shared directory.
func (n *FetchNode) removeExports(result requester.FetchResult, logger *slog.Logger) {
	if n.directory == nil {
		return
	}
	for _, path := range []string{result.ImagePath, result.MaskPath} {
		if path == "" || filepath.Dir(filepath.Clean(path)) != n.directory.Path() {
			continue
		}
		if err := n.directory.Remove(filepath.Base(path)); err != nil {
			logger.Warn("removing export", "file", path, "error", err)
		}
	}
}
