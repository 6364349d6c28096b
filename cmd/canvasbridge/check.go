// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/canvasbridge/cmd/canvasbridge/cli"
)

func checkCommand() *cli.Command {
	var flags sessionFlags
	var nodeID string
	return &cli.Command{
		Name:    "check",
		Summary: "Report whether the editor has an active document",
		Description: `Send a check_document request and print the answer. Exits 0 when a
document is open, 1 when none is, and 2 when the editor did not answer.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nodeID, "node-id", "check", "node id of the request")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			session, err := flags.open()
			if err != nil {
				return err
			}
			defer session.close()

			ctx, cancel := signalContext()
			defer cancel()

			hasDocument, err := session.requester.CheckDocument(ctx, nodeID)
			if err != nil {
				fmt.Printf("no answer: %v\n", err)
				return &cli.ExitError{Code: 2}
			}
			if !hasDocument {
				fmt.Println("no active document")
				return failure
			}
			fmt.Println("active document")
			return nil
		},
	}
}

func probeCommand() *cli.Command {
	var flags sessionFlags
	return &cli.Command{
		Name:    "probe",
		Summary: "Report whether the editor answers",
		Description: `Check the responder's presence flag, then fall back to a
check_document round trip. Exits 0 when the responder is reachable.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("probe", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			session, err := flags.open()
			if err != nil {
				return err
			}
			defer session.close()

			ctx, cancel := signalContext()
			defer cancel()

			if !session.requester.IsPeerAlive(ctx) {
				fmt.Println("editor not reachable")
				return failure
			}
			fmt.Println("editor reachable")
			return nil
		},
	}
}

func waitCommand() *cli.Command {
	var flags sessionFlags
	var maxWait time.Duration
	return &cli.Command{
		Name:    "wait",
		Summary: "Block until the editor answers",
		Description: `Poll until the responder is reachable or the wait runs out. Exits 0
once it answers and 1 on timeout.`,
		Examples: []cli.Example{
			{Description: "Wait up to a minute for the editor to start", Command: "canvasbridge wait --max-wait 1m"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("wait", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&maxWait, "max-wait", 0, "how long to wait (default: liveness.max_wait)")
			return flagSet
		},
		Run: func(args []string) error {
			if maxWait < 0 {
				return errors.New("--max-wait must not be negative")
			}
			session, err := flags.open()
			if err != nil {
				return err
			}
			defer session.close()

			ctx, cancel := signalContext()
			defer cancel()

			if !session.requester.WaitForPeer(ctx, maxWait) {
				fmt.Println("editor did not answer")
				return failure
			}
			fmt.Println("editor reachable")
			return nil
		},
	}
}
