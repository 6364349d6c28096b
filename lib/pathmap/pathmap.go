// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathmap translates absolute paths between the two hosts'
// views of the shared directory.
//
// The editor and the pipeline may mount the same directory at
// different places: a Windows drive path on one side, a WSL mount on
// the other. A [Table] lists prefix pairs in priority order; the first
// rule whose source prefix matches (on a path-component boundary) wins,
// so more specific prefixes go first.
//
//	table := pathmap.Table{
//		Rules:       []pathmap.Rule{{From: `A:\D\open_in_editor`, To: "/mnt/d/open_in_editor"}},
//		Source:      pathmap.Windows,
//		Destination: pathmap.POSIX,
//	}
//	translator, _ := pathmap.New(table, logger)
//	translator.Translate(`A:\D\open_in_editor\send_7.png`) // "/mnt/d/open_in_editor/send_7.png"
//
// Paths that match no rule come back unchanged and a warning is logged.
// A misconfigured table therefore degrades to "both hosts share one
// namespace" instead of failing the call.
package pathmap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Namespace describes one host's path syntax.
type Namespace struct {
	// Separator is the path separator written on output.
	Separator byte

	// CaseInsensitive makes prefix matching ignore case when this
	// namespace is the source.
	CaseInsensitive bool
}

var (
	// POSIX paths: '/' separated, case-sensitive.
	POSIX = Namespace{Separator: '/'}

	// Windows paths: '\' separated, case-insensitive.
	Windows = Namespace{Separator: '\\', CaseInsensitive: true}
)

// Rule maps one source prefix to one destination prefix.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Table is an ordered translation table.
type Table struct {
	Rules       []Rule
	Source      Namespace
	Destination Namespace

	// FoldCase lowercases every translated path. Useful when the
	// destination is case-sensitive but the source writes paths with
	// arbitrary case for files that exist in lowercase. Translations
	// with FoldCase set do not invert exactly.
	FoldCase bool
}

type compiledRule struct {
	from string
	to   string
}

// Translator applies a Table. Safe for concurrent use.
type Translator struct {
	table  Table
	rules  []compiledRule
	logger *slog.Logger
}

// New validates table and returns its translator. A table without
// rules is the identity and never logs.
func New(table Table, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(table.Rules) > 0 && (table.Source.Separator == 0 || table.Destination.Separator == 0) {
		return nil, errors.New("path translation table needs source and destination separators")
	}

	translator := &Translator{table: table, logger: logger}
	var errs []error
	for index, rule := range table.Rules {
		from := trimSeparators(normalize(rule.From))
		to := trimSeparators(normalize(rule.To))
		if from == "" || to == "" {
			errs = append(errs, fmt.Errorf("rule %d: from and to must both be set", index))
			continue
		}
		translator.rules = append(translator.rules, compiledRule{from: from, to: to})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return translator, nil
}

// Identity returns a translator that changes nothing.
func Identity() *Translator {
	return &Translator{logger: slog.New(slog.DiscardHandler)}
}

// Translate maps path into the destination namespace, or returns it
// unchanged when no rule matches.
func (t *Translator) Translate(path string) string {
	translated, ok := t.TranslateMatched(path)
	if !ok && len(t.rules) > 0 && path != "" {
		t.logger.Warn("no path translation rule matches, using path unchanged", "path", path)
	}
	return translated
}

// TranslateMatched is Translate without the warning. ok reports whether
// a rule matched.
func (t *Translator) TranslateMatched(path string) (translated string, ok bool) {
	if path == "" || len(t.rules) == 0 {
		return path, false
	}
	normalized := normalize(path)
	for _, rule := range t.rules {
		remainder, matched := t.cutPrefix(normalized, rule.from)
		if !matched {
			continue
		}
		result := join(rule.to, remainder)
		if t.table.Destination.Separator != '/' {
			result = strings.ReplaceAll(result, "/", string(t.table.Destination.Separator))
		}
		if t.table.FoldCase {
			result = strings.ToLower(result)
		}
		return result, true
	}
	return path, false
}

// Inverse returns the translator for the opposite direction. FoldCase
// does not carry over.
func (t *Translator) Inverse() (*Translator, error) {
	inverse := Table{Source: t.table.Destination, Destination: t.table.Source}
	for _, rule := range t.table.Rules {
		inverse.Rules = append(inverse.Rules, Rule{From: rule.To, To: rule.From})
	}
	return New(inverse, t.logger)
}

// cutPrefix matches prefix against path on a component boundary and
// returns the rest of path. The rest starts with '/' unless prefix is
// a root ending in '/'.
func (t *Translator) cutPrefix(path, prefix string) (string, bool) {
	if len(path) < len(prefix) {
		return "", false
	}
	head := path[:len(prefix)]
	if t.table.Source.CaseInsensitive {
		if !strings.EqualFold(head, prefix) {
			return "", false
		}
	} else if head != prefix {
		return "", false
	}
	remainder := path[len(prefix):]
	if remainder != "" && remainder[0] != '/' && !strings.HasSuffix(prefix, "/") {
		return "", false
	}
	return remainder, true
}

// normalize rewrites both separator styles to '/'.
func normalize(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// join appends remainder to prefix with exactly one '/' between them.
func join(prefix, remainder string) string {
	remainder = strings.TrimLeft(remainder, "/")
	if remainder == "" {
		return prefix
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + remainder
	}
	return prefix + "/" + remainder
}

// trimSeparators drops trailing separators, except that roots keep
// theirs: "/" stays "/" and a drive root stays "D:/", since "D:" alone
// names the drive's current directory.
func trimSeparators(path string) string {
	trimmed := strings.TrimRight(path, "/")
	switch {
	case trimmed == "" && path != "":
		return "/"
	case trimmed != path && isDriveLetter(trimmed):
		return trimmed + "/"
	}
	return trimmed
}

func isDriveLetter(path string) bool {
	if len(path) != 2 || path[1] != ':' {
		return false
	}
	letter := path[0] | 0x20
	return letter >= 'a' && letter <= 'z'
}
