// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_AutoIsJSONWhenNotATerminal(t *testing.T) {
	var buffer bytes.Buffer
	logger, closer, err := New(Options{Output: &buffer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer()

	logger.Info("request handled", "kind", "fetch", "node_id", "n1")
	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buffer.String())
	}
	if record["msg"] != "request handled" || record["node_id"] != "n1" {
		t.Fatalf("record = %v", record)
	}
}

func TestNew_TextAndLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger, _, err := New(Options{Output: &buffer, Format: "text", Level: slog.LevelWarn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "file", "fetch_n1_1.request")

	output := buffer.String()
	if strings.Contains(output, "hidden") {
		t.Fatalf("info line logged at warn level: %s", output)
	}
	if !strings.Contains(output, "msg=shown") || !strings.Contains(output, "file=fetch_n1_1.request") {
		t.Fatalf("text output = %s", output)
	}
}

func TestNew_File(t *testing.T) {
	var buffer bytes.Buffer
	path := filepath.Join(t.TempDir(), "bridge.log")
	logger, closer, err := New(Options{Output: &buffer, Format: "text", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.With("component", "responder").Info("started")
	if err := closer(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if record["component"] != "responder" {
		t.Fatalf("record = %v", record)
	}
	if !strings.Contains(buffer.String(), "msg=started") {
		t.Fatalf("primary output = %s", buffer.String())
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("New accepted an unknown format")
	}
}
