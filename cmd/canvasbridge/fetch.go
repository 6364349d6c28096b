// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/canvasbridge/cmd/canvasbridge/cli"
	"github.com/bureau-foundation/canvasbridge/lib/node"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
)

func fetchCommand() *cli.Command {
	var flags sessionFlags
	var (
		nodeID     string
		output     string
		maskOutput string
		input      string
		inputMask  string
		alpha      string
	)
	return &cli.Command{
		Name:    "fetch",
		Summary: "Export the editor's canvas and selection",
		Description: `Ask the editor for its active canvas and write it to --output. The
selection, or --input-mask when nothing is selected, goes to
--mask-output. When the editor cannot deliver, --input is written
instead and the command exits 2; without --input it exits 1.`,
		Examples: []cli.Example{
			{Command: "canvasbridge fetch -o canvas.png -m mask.png"},
			{Description: "Fall back to a default image", Command: "canvasbridge fetch -o canvas.png --input default.png"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nodeID, "node-id", "fetch", "node id of the request")
			flagSet.StringVarP(&output, "output", "o", "", "where to write the canvas (required)")
			flagSet.StringVarP(&maskOutput, "mask-output", "m", "", "where to write the mask")
			flagSet.StringVar(&input, "input", "", "image written when the editor cannot deliver")
			flagSet.StringVar(&inputMask, "input-mask", "", "mask used when the editor has no selection")
			flagSet.StringVar(&alpha, "alpha", "", "keep, white, black or gray (default: requester.alpha_mode)")
			return flagSet
		},
		Run: func(args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			session, err := flags.open()
			if err != nil {
				return err
			}
			defer session.close()

			alphaMode := session.config.AlphaMode()
			if alpha != "" {
				if alphaMode, err = pixel.ParseAlphaMode(alpha); err != nil {
					return err
				}
			}

			fetchInput := node.FetchInput{NodeID: nodeID, AlphaMode: alphaMode}
			if input != "" {
				if fetchInput.Image, err = pixel.Load(input, pixel.AlphaKeep); err != nil {
					return err
				}
			}
			if inputMask != "" {
				if fetchInput.Mask, err = pixel.LoadMask(inputMask); err != nil {
					return err
				}
			}

			fetch, err := node.NewFetchNode(node.FetchConfig{
				Bridge:    session.requester,
				Directory: session.directory,
				Notifier:  node.LogNotifier(session.logger),
				Logger:    session.logger,
				FileRetry: session.config.Requester.FileRetry,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			result := fetch.Process(ctx, fetchInput)
			if result.Image == nil {
				fmt.Printf("nothing fetched: %v\n", result.Fallback)
				return failure
			}
			if err := save(output, result.Image); err != nil {
				return err
			}
			if maskOutput != "" {
				if err := save(maskOutput, result.Mask); err != nil {
					return err
				}
			}
			if !result.Fetched {
				fmt.Printf("wrote input image to %s: %v\n", output, result.Fallback)
				return &cli.ExitError{Code: 2}
			}
			fmt.Printf("wrote canvas to %s\n", output)
			return nil
		},
	}
}

// save writes img in the format named by path's extension.
func save(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
