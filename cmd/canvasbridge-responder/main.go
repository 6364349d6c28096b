// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/canvasbridge/lib/config"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/editor/imagehost"
	"github.com/bureau-foundation/canvasbridge/lib/logging"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/responder"
	"github.com/bureau-foundation/canvasbridge/lib/version"
)

const component = "canvasbridge-responder"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", component, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		directory   string
		openPath    string
		selection   string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet(component, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&directory, "directory", "d", "", "shared directory, overriding the config")
	flagSet.StringVar(&openPath, "open", "", "image to open as the first document")
	flagSet.StringVar(&selection, "selection", "", "mask applied as the selection of --open")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error, overriding the config")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("%s %s\n", component, version.Info())
		return nil
	}
	if selection != "" && openPath == "" {
		return errors.New("--selection needs --open")
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if directory != "" {
		cfg.Directory = directory
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("component", component)

	host := imagehost.New()
	if openPath != "" {
		if _, err := host.Load(openPath); err != nil {
			return err
		}
		if selection != "" {
			mask, err := pixel.LoadMask(selection)
			if err != nil {
				return err
			}
			if err := host.SetSelection(mask); err != nil {
				return err
			}
		}
	}

	shared, err := dropdir.Open(cfg.Directory)
	if err != nil {
		return err
	}
	peerPaths, err := cfg.PeerPaths(logger)
	if err != nil {
		return fmt.Errorf("translation: %w", err)
	}

	bridge, err := responder.New(responder.Config{
		Directory:            shared,
		Editor:               host,
		PeerPaths:            peerPaths,
		Logger:               logger,
		Debounce:             cfg.Responder.Debounce,
		FallbackScanInterval: cfg.Responder.FallbackScanInterval,
		DisableNotify:        cfg.Responder.DisableNotify,
		LayerSetupDelay:      cfg.Responder.LayerSetupDelay,
		PresenceFileName:     cfg.PresenceFile,
		Presence: presence.Info{
			Component: component,
			Version:   version.Short(),
			PID:       os.Getpid(),
		},
	})
	if err != nil {
		return err
	}

	logger.Info("starting responder",
		"version", version.Info(),
		"directory", shared.Path(),
		"documents", len(host.Documents()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bridge.Run(ctx); err != nil {
		return err
	}
	logger.Info("responder stopped", "documents_opened", host.OpenCount())
	return nil
}
