// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/canvasbridge/cmd/canvasbridge/cli"
	"github.com/bureau-foundation/canvasbridge/lib/config"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/logging"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/version"
)

func root() *cli.Command {
	return &cli.Command{
		Name:    "canvasbridge",
		Summary: "Exchange images with a running editor",
		Description: `canvasbridge talks to canvasbridge-responder through a shared
directory. Requests are small files the responder claims, answers and
removes; both sides only need the directory in common.`,
		Subcommands: []*cli.Command{
			checkCommand(),
			probeCommand(),
			waitCommand(),
			fetchCommand(),
			sendCommand(),
			versionCommand(),
		},
	}
}

// sessionFlags are the flags every protocol subcommand accepts.
type sessionFlags struct {
	configPath string
	directory  string
	logLevel   string
	logFormat  string
}

func (f *sessionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&f.directory, "directory", "d", "", "shared directory, overriding the config")
	flagSet.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error, overriding the config")
	flagSet.StringVar(&f.logFormat, "log-format", "", "auto, json or text, overriding the config")
}

// session is the state shared by one subcommand invocation.
type session struct {
	config    *config.Config
	logger    *slog.Logger
	directory *dropdir.Directory
	requester *requester.Requester
	closeLog  func() error
}

func (f *sessionFlags) open() (*session, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if f.directory != "" {
		cfg.Directory = f.directory
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With("component", "canvasbridge")

	directory, err := dropdir.Open(cfg.Directory)
	if err != nil {
		closeLog()
		return nil, err
	}
	peerPaths, err := cfg.PeerPaths(logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("translation: %w", err)
	}
	bridge, err := requester.New(requester.Config{
		Directory:        directory,
		PeerPaths:        peerPaths,
		Logger:           logger,
		Timings:          cfg.Timings(),
		Liveness:         cfg.Requester.Liveness,
		OpenDedupWindow:  cfg.Requester.OpenDedupWindow,
		PresenceFileName: cfg.PresenceFile,
	})
	if err != nil {
		closeLog()
		return nil, err
	}
	return &session{
		config:    cfg,
		logger:    logger,
		directory: directory,
		requester: bridge,
		closeLog:  closeLog,
	}, nil
}

func (s *session) close() {
	if err := s.closeLog(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
	}
}

// signalContext is cancelled by SIGINT or SIGTERM, so an interrupted
// call abandons its wait and leaves no request behind.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print the build version",
		Run: func(args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}

// failure is the exit status of a protocol outcome the command already
// reported.
var failure = &cli.ExitError{Code: 1}
