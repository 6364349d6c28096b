// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/canvasbridge/cmd/canvasbridge/cli"
	"github.com/bureau-foundation/canvasbridge/lib/node"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

func sendCommand() *cli.Command {
	var flags sessionFlags
	var (
		nodeID    string
		mask      string
		noOpen    bool
		layer     string
		alignment string
		reply     bool
	)
	return &cli.Command{
		Name:    "send",
		Summary: "Save an image to the shared directory and open it in the editor",
		Usage:   "canvasbridge send <image> [flags]",
		Description: `Copy an image into the shared directory, cropped to --mask when one
is given, and ask the editor to open it. Sending the same pixels twice
within requester.open_dedup_window opens them once.`,
		Examples: []cli.Example{
			{Command: "canvasbridge send result.png"},
			{Description: "Add as a layer anchored top left and wait for the editor", Command: "canvasbridge send result.png --layer top_of_current --align top_left --reply"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nodeID, "node-id", "", "node id naming the files (default: a fresh send- id)")
			flagSet.StringVar(&mask, "mask", "", "mask the image is cropped to")
			flagSet.BoolVar(&noOpen, "no-open", false, "only save the image")
			flagSet.StringVar(&layer, "layer", string(wire.LayerNewDocument), "new_document or top_of_current")
			flagSet.StringVar(&alignment, "align", string(wire.AlignCenter), "center, top_left, top_right, bottom_left or bottom_right")
			flagSet.BoolVar(&reply, "reply", false, "wait for the editor to confirm the open")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one image path")
			}
			position := wire.LayerPosition(layer)
			anchor := wire.Alignment(alignment)
			if err := errors.Join(position.Validate(), anchor.Validate()); err != nil {
				return err
			}

			session, err := flags.open()
			if err != nil {
				return err
			}
			defer session.close()

			sendInput := node.SendInput{
				NodeID:        nodeID,
				AutoOpen:      !noOpen,
				LayerPosition: position,
				Alignment:     anchor,
				Reply:         reply,
			}
			if sendInput.Image, err = pixel.Load(args[0], pixel.AlphaKeep); err != nil {
				return err
			}
			if mask != "" {
				if sendInput.Mask, err = pixel.LoadMask(mask); err != nil {
					return err
				}
			}

			send, err := node.NewSendNode(node.SendConfig{
				Bridge:    session.requester,
				Directory: session.directory,
				Notifier:  node.LogNotifier(session.logger),
				Logger:    session.logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			result, err := send.Process(ctx, sendInput)
			if err != nil {
				return err
			}
			fmt.Printf("saved %s\n", result.ImagePath)
			switch {
			case result.Suppressed:
				fmt.Println("same image sent moments ago, not reopened")
			case result.Requested:
				fmt.Println("open requested")
			case sendInput.AutoOpen:
				return failure
			}
			return nil
		},
	}
}
