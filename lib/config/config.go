// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/canvasbridge/lib/node"
	"github.com/bureau-foundation/canvasbridge/lib/pathmap"
	"github.com/bureau-foundation/canvasbridge/lib/pixel"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/responder"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// EnvironmentVariable names the config file for [Load].
const EnvironmentVariable = "CANVASBRIDGE_CONFIG"

// Config is the configuration of both bridge endpoints. Each binary
// reads the sections it needs.
type Config struct {
	// Directory is the shared directory, in this host's namespace.
	Directory string `yaml:"directory"`

	// PresenceFile names the responder's presence flag inside
	// Directory.
	PresenceFile string `yaml:"presence_file"`

	Responder   ResponderConfig   `yaml:"responder"`
	Requester   RequesterConfig   `yaml:"requester"`
	Translation TranslationConfig `yaml:"translation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ResponderConfig tunes the editor-side endpoint.
type ResponderConfig struct {
	// Debounce delays the scan after a directory change.
	Debounce time.Duration `yaml:"debounce"`

	// FallbackScanInterval is the period of the rescan that runs
	// whether or not a change was noticed. Negative disables it.
	FallbackScanInterval time.Duration `yaml:"fallback_scan_interval"`

	// LayerSetupDelay is how long after opening a document its layers
	// are prepared.
	LayerSetupDelay time.Duration `yaml:"layer_setup_delay"`

	// DisableNotify relies on the fallback rescan alone. Some shared
	// folders never deliver change notifications.
	DisableNotify bool `yaml:"disable_notify"`
}

// RequesterConfig tunes the pipeline-side endpoint.
type RequesterConfig struct {
	// Timings overrides the poll policy per kind. Zero fields keep the
	// default for that kind.
	Timings map[wire.Kind]requester.Timing `yaml:"timings"`

	Liveness requester.Liveness `yaml:"liveness"`

	// OpenDedupWindow suppresses repeated sends of the same image.
	// Negative disables it.
	OpenDedupWindow time.Duration `yaml:"open_dedup_window"`

	// FileRetry bounds the wait for fetched exports to appear.
	FileRetry node.FileRetry `yaml:"file_retry"`

	// AlphaMode is applied to fetched canvases: keep, white, black or
	// gray.
	AlphaMode string `yaml:"alpha_mode"`
}

// TranslationConfig maps paths written by the peer into this host's
// namespace. Rules are tried in order, first match wins.
type TranslationConfig struct {
	Rules []pathmap.Rule `yaml:"rules"`

	// Peer and Local are "posix" or "windows".
	Peer  string `yaml:"peer"`
	Local string `yaml:"local"`

	// FoldCase lowercases translated paths.
	FoldCase bool `yaml:"fold_case"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is auto, json or text. Auto picks text on a terminal.
	Format string `yaml:"format"`

	// File, when set, receives a copy of every log line.
	File string `yaml:"file"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	return &Config{
		Directory:    filepath.Join(os.TempDir(), "canvasbridge"),
		PresenceFile: presence.DefaultFileName,
		Responder: ResponderConfig{
			Debounce:             responder.DefaultDebounce,
			FallbackScanInterval: responder.DefaultFallbackScanInterval,
			LayerSetupDelay:      responder.DefaultLayerSetupDelay,
		},
		Requester: RequesterConfig{
			Timings:         map[wire.Kind]requester.Timing{},
			Liveness:        requester.DefaultLiveness(),
			OpenDedupWindow: requester.DefaultOpenDedupWindow,
			FileRetry:       node.DefaultFileRetry(),
			AlphaMode:       string(pixel.AlphaKeep),
		},
		Translation: TranslationConfig{
			Peer:  "posix",
			Local: "posix",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by CANVASBRIDGE_CONFIG. With the variable
// unset it returns Default, so both binaries run unconfigured against
// the default directory.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		config := Default()
		config.expandVariables()
		return config, config.Validate()
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults. Files
// ending in .json or .jsonc may carry comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if err := config.loadFile(path); err != nil {
		return nil, err
	}
	config.expandVariables()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is YAML; only the comments need stripping.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":   os.Getenv("HOME"),
		"TMPDIR": os.TempDir(),
	}
	c.Directory = expandVars(c.Directory, vars)
	c.Logging.File = expandVars(c.Logging.File, vars)
	for index, rule := range c.Translation.Rules {
		c.Translation.Rules[index].From = expandVars(rule.From, vars)
		c.Translation.Rules[index].To = expandVars(rule.To, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Directory == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	if c.PresenceFile == "" || strings.ContainsAny(c.PresenceFile, `/\`) {
		errs = append(errs, fmt.Errorf("presence_file must be a plain file name, got %q", c.PresenceFile))
	}

	if c.Responder.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("responder.debounce must be positive, got %v", c.Responder.Debounce))
	}
	if c.Responder.LayerSetupDelay <= 0 {
		errs = append(errs, fmt.Errorf("responder.layer_setup_delay must be positive, got %v", c.Responder.LayerSetupDelay))
	}
	if c.Responder.DisableNotify && c.Responder.FallbackScanInterval < 0 {
		errs = append(errs, errors.New("responder: disable_notify with a negative fallback_scan_interval leaves nothing watching the directory"))
	}

	for kind := range c.Requester.Timings {
		if !kind.IsKnown() {
			errs = append(errs, fmt.Errorf("requester.timings: unknown kind %q", kind))
		}
	}
	for kind, timing := range c.Timings() {
		if err := timing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("requester.timings.%s: %w", kind, err))
		}
	}
	if c.Requester.Liveness.Interval < 0 || c.Requester.Liveness.MaxWait < 0 || c.Requester.Liveness.ProbeTimeout < 0 {
		errs = append(errs, errors.New("requester.liveness durations must not be negative"))
	}
	if c.Requester.FileRetry.Attempts < 0 || c.Requester.FileRetry.Interval < 0 {
		errs = append(errs, errors.New("requester.file_retry must not be negative"))
	}
	if _, err := pixel.ParseAlphaMode(c.Requester.AlphaMode); err != nil {
		errs = append(errs, fmt.Errorf("requester.alpha_mode: %w", err))
	}

	if _, err := parseNamespace(c.Translation.Peer); err != nil {
		errs = append(errs, fmt.Errorf("translation.peer: %w", err))
	}
	if _, err := parseNamespace(c.Translation.Local); err != nil {
		errs = append(errs, fmt.Errorf("translation.local: %w", err))
	}
	for index, rule := range c.Translation.Rules {
		if rule.From == "" || rule.To == "" {
			errs = append(errs, fmt.Errorf("translation.rules[%d]: from and to are required", index))
		}
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Timings returns the poll policy of every kind, with the file's
// non-zero fields laid over the defaults.
func (c *Config) Timings() map[wire.Kind]requester.Timing {
	timings := make(map[wire.Kind]requester.Timing, len(wire.DispatchOrder))
	for _, kind := range wire.DispatchOrder {
		timing := requester.DefaultTiming(kind)
		override := c.Requester.Timings[kind]
		if override.PollInterval != 0 {
			timing.PollInterval = override.PollInterval
		}
		if override.Timeout != 0 {
			timing.Timeout = override.Timeout
		}
		if override.Grace != 0 {
			timing.Grace = override.Grace
		}
		timings[kind] = timing
	}
	return timings
}

// PeerPaths builds the translator for paths written by the peer.
func (c *Config) PeerPaths(logger *slog.Logger) (*pathmap.Translator, error) {
	if len(c.Translation.Rules) == 0 {
		return pathmap.Identity(), nil
	}
	peer, err := parseNamespace(c.Translation.Peer)
	if err != nil {
		return nil, err
	}
	local, err := parseNamespace(c.Translation.Local)
	if err != nil {
		return nil, err
	}
	return pathmap.New(pathmap.Table{
		Rules:       c.Translation.Rules,
		Source:      peer,
		Destination: local,
		FoldCase:    c.Translation.FoldCase,
	}, logger)
}

// AlphaMode returns the validated alpha mode.
func (c *Config) AlphaMode() pixel.AlphaMode {
	mode, err := pixel.ParseAlphaMode(c.Requester.AlphaMode)
	if err != nil {
		return pixel.AlphaKeep
	}
	return mode
}

func parseNamespace(name string) (pathmap.Namespace, error) {
	switch strings.ToLower(name) {
	case "", "posix":
		return pathmap.POSIX, nil
	case "windows":
		return pathmap.Windows, nil
	}
	return pathmap.Namespace{}, fmt.Errorf("unknown namespace %q (want posix or windows)", name)
}

// ParseLevel parses a log level name.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown level %q (want debug, info, warn or error)", name)
	}
	return level, nil
}
