// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence writes and inspects the responder's presence flag:
// a fixed-name file in the shared directory whose existence means "a
// responder started here".
//
// The responder writes the flag once, after its startup sweep. Nothing
// deletes it. A responder that crashes leaves the flag behind, so the
// flag can claim liveness for a dead peer; the requester's liveness
// check uses it only as a fast path ahead of an active probe.
//
// The content is informational text for humans. Only [Parse] reads it
// back, for display, and it tolerates anything.
package presence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
)

// DefaultFileName is the flag's name inside the shared directory.
const DefaultFileName = "_responder_loaded.txt"

// previewLimit bounds how much of the flag Preview reads.
const previewLimit = 100

// Info is what the flag records about the process that wrote it.
type Info struct {
	// Component names the writer, e.g. "canvasbridge-responder".
	Component string

	// Version is the writer's build version.
	Version string

	// PID is the writer's process id on its own host.
	PID int

	// StartedAt is when the writer started.
	StartedAt time.Time
}

const headline = "canvasbridge responder loaded"

// Format renders info as the flag's text content.
func Format(info Info) []byte {
	var builder strings.Builder
	builder.WriteString(headline + "\n")
	fmt.Fprintf(&builder, "component: %s\n", info.Component)
	fmt.Fprintf(&builder, "version: %s\n", info.Version)
	fmt.Fprintf(&builder, "pid: %d\n", info.PID)
	fmt.Fprintf(&builder, "started_at: %s\n", info.StartedAt.UTC().Format(time.RFC3339Nano))
	return []byte(builder.String())
}

// Write atomically writes the flag named name into directory.
func Write(directory *dropdir.Directory, name string, info Info) error {
	if err := directory.WriteFile(name, Format(info)); err != nil {
		return fmt.Errorf("writing presence flag: %w", err)
	}
	return nil
}

// Present reports whether the flag exists.
func Present(directory *dropdir.Directory, name string) (bool, error) {
	return directory.Exists(name)
}

// Preview returns up to the first 100 bytes of the flag. A missing flag
// yields an error wrapping fs.ErrNotExist.
func Preview(directory *dropdir.Directory, name string) (string, error) {
	file, err := os.Open(directory.Join(name))
	if err != nil {
		return "", err
	}
	defer file.Close()

	buffer := make([]byte, previewLimit)
	count, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading presence flag: %w", err)
	}
	return string(buffer[:count]), nil
}

// Parse extracts the fields Format writes. Unknown lines and
// unparseable values are ignored; flags written by other tools yield a
// zero Info.
func Parse(content []byte) Info {
	var info Info
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "component":
			info.Component = value
		case "version":
			info.Version = value
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				info.PID = pid
			}
		case "started_at":
			if startedAt, err := time.Parse(time.RFC3339Nano, value); err == nil {
				info.StartedAt = startedAt
			}
		}
	}
	return info
}
