// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/responder"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.PresenceFile != presence.DefaultFileName {
		t.Errorf("expected presence_file=%s, got %s", presence.DefaultFileName, cfg.PresenceFile)
	}
	if cfg.Responder.Debounce != responder.DefaultDebounce {
		t.Errorf("expected debounce=%v, got %v", responder.DefaultDebounce, cfg.Responder.Debounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Timings()[wire.KindFetch]; got != requester.DefaultTiming(wire.KindFetch) {
		t.Errorf("fetch timing = %+v", got)
	}
}

func TestLoad_WithoutVariableUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Directory != Default().Directory {
		t.Errorf("expected default directory, got %s", cfg.Directory)
	}
}

func TestLoad_WithVariable(t *testing.T) {
	path := writeConfig(t, "canvasbridge.yaml", `
directory: /srv/share
responder:
  debounce: 150ms
requester:
  timings:
    fetch:
      timeout: 20s
  open_dedup_window: -1s
logging:
  level: debug
  format: json
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Directory != "/srv/share" {
		t.Errorf("expected directory=/srv/share, got %s", cfg.Directory)
	}
	if cfg.Responder.Debounce != 150*time.Millisecond {
		t.Errorf("expected debounce=150ms, got %v", cfg.Responder.Debounce)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Responder.LayerSetupDelay != responder.DefaultLayerSetupDelay {
		t.Errorf("expected default layer_setup_delay, got %v", cfg.Responder.LayerSetupDelay)
	}

	fetch := cfg.Timings()[wire.KindFetch]
	if fetch.Timeout != 20*time.Second {
		t.Errorf("expected fetch timeout=20s, got %v", fetch.Timeout)
	}
	if fetch.PollInterval != requester.DefaultTiming(wire.KindFetch).PollInterval {
		t.Errorf("partial timing override lost the default poll interval: %v", fetch.PollInterval)
	}
	if cfg.Requester.OpenDedupWindow != -time.Second {
		t.Errorf("expected open_dedup_window=-1s, got %v", cfg.Requester.OpenDedupWindow)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "canvasbridge.jsonc", `{
  // Windows editor, Linux pipeline.
  "directory": "/mnt/d/share",
  "translation": {
    "peer": "windows",
    "local": "posix",
    "rules": [
      {"from": "D:\\share", "to": "/mnt/d/share"},
    ],
  },
  "requester": {"alpha_mode": "white"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.AlphaMode() != pixel.AlphaWhite {
		t.Errorf("alpha mode = %s", cfg.AlphaMode())
	}
	translator, err := cfg.PeerPaths(slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("PeerPaths: %v", err)
	}
	if got := translator.Translate(`d:\share\editor_export_n1_1.png`); got != "/mnt/d/share/editor_export_n1_1.png" {
		t.Errorf("Translate = %q", got)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("HOME", "/home/painter")
	t.Setenv("CANVASBRIDGE_TEST_SHARE", "")
	path := writeConfig(t, "canvasbridge.yaml", `
directory: ${CANVASBRIDGE_TEST_SHARE:-/srv/share}
logging:
  file: ${HOME}/bridge.log
translation:
  rules:
    - from: /peer/share
      to: ${HOME}/share
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Directory != "/srv/share" {
		t.Errorf("directory = %s", cfg.Directory)
	}
	if cfg.Logging.File != "/home/painter/bridge.log" {
		t.Errorf("logging.file = %s", cfg.Logging.File)
	}
	if cfg.Translation.Rules[0].To != "/home/painter/share" {
		t.Errorf("rule to = %s", cfg.Translation.Rules[0].To)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("CANVASBRIDGE_TEST_VAR", "fromenv")
	vars := map[string]string{"HOME": "/home/test"}

	tests := []struct {
		input, want string
	}{
		{"${HOME}/share", "/home/test/share"},
		{"${CANVASBRIDGE_TEST_VAR}", "fromenv"},
		{"${CANVASBRIDGE_TEST_UNSET:-fallback}", "fallback"},
		{"${CANVASBRIDGE_TEST_UNSET}", ""},
		{"no variables", "no variables"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Directory = ""
	cfg.PresenceFile = "nested/flag.txt"
	cfg.Responder.Debounce = 0
	cfg.Requester.Timings[wire.Kind("resize")] = requester.Timing{}
	cfg.Requester.Timings[wire.KindFetch] = requester.Timing{PollInterval: -time.Second}
	cfg.Requester.AlphaMode = "purple"
	cfg.Translation.Peer = "vms"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"directory is required",
		"presence_file",
		"responder.debounce",
		`unknown kind "resize"`,
		"requester.timings.fetch",
		"requester.alpha_mode",
		"translation.peer",
		"logging.level",
		"logging.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_NothingWatching(t *testing.T) {
	cfg := Default()
	cfg.Responder.DisableNotify = true
	cfg.Responder.FallbackScanInterval = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when neither notification nor rescan is enabled")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	path := writeConfig(t, "bad.yaml", "responder: [not, a, map]\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected a parse error")
	}
	path = writeConfig(t, "invalid.yaml", "logging:\n  format: xml\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("expected a validation error naming the file, got %v", err)
	}
}

func TestPeerPaths_IdentityWithoutRules(t *testing.T) {
	translator, err := Default().PeerPaths(nil)
	if err != nil {
		t.Fatalf("PeerPaths: %v", err)
	}
	if got := translator.Translate("/any/path.png"); got != "/any/path.png" {
		t.Errorf("Translate = %q", got)
	}
}
