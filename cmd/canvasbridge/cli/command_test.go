// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testTree(ran *[]string, timeout *string) *Command {
	return &Command{
		Name:   "canvasbridge",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{
				Name:    "fetch",
				Summary: "Fetch the canvas",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
					flagSet.StringVar(timeout, "timeout", "", "call timeout")
					return flagSet
				},
				Run: func(args []string) error {
					*ran = append(*ran, "fetch")
					*ran = append(*ran, args...)
					return nil
				},
			},
			{
				Name:    "check",
				Summary: "Check for a document",
				Run: func(args []string) error {
					*ran = append(*ran, "check")
					return nil
				},
			},
		},
	}
}

func TestExecute_DispatchesWithFlags(t *testing.T) {
	var ran []string
	var timeout string
	root := testTree(&ran, &timeout)

	if err := root.Execute([]string{"fetch", "--timeout", "5s", "node-1"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(ran, ",") != "fetch,node-1" {
		t.Errorf("ran = %v, want [fetch node-1]", ran)
	}
	if timeout != "5s" {
		t.Errorf("timeout = %q, want 5s", timeout)
	}
}

func TestExecute_UnknownCommandSuggests(t *testing.T) {
	var ran []string
	var timeout string
	root := testTree(&ran, &timeout)

	err := root.Execute([]string{"fetc"})
	if err == nil {
		t.Fatal("Execute succeeded for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "fetch"`) {
		t.Errorf("error = %q, want a fetch suggestion", err)
	}
	if len(ran) != 0 {
		t.Errorf("ran = %v, want nothing", ran)
	}
}

func TestExecute_UnknownFlagSuggests(t *testing.T) {
	var ran []string
	var timeout string
	root := testTree(&ran, &timeout)

	err := root.Execute([]string{"fetch", "--timout", "5s"})
	if err == nil {
		t.Fatal("Execute succeeded for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --timeout") {
		t.Errorf("error = %q, want a --timeout suggestion", err)
	}
}

func TestExecute_NoSubcommandPrintsHelp(t *testing.T) {
	var ran []string
	var timeout string
	root := testTree(&ran, &timeout)

	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute succeeded without a subcommand")
	}
	help := root.Output.(*bytes.Buffer).String()
	for _, want := range []string{"Commands:", "fetch", "Fetch the canvas", "check"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestExecute_HelpFlag(t *testing.T) {
	var ran []string
	var timeout string
	root := testTree(&ran, &timeout)

	if err := root.Execute([]string{"fetch", "--help"}); err != nil {
		t.Fatalf("Execute --help: %v", err)
	}
	help := root.Output.(*bytes.Buffer).String()
	if !strings.Contains(help, "--timeout") {
		t.Errorf("help missing --timeout:\n%s", help)
	}
	if !strings.Contains(help, "canvasbridge fetch [flags]") {
		t.Errorf("help missing usage line:\n%s", help)
	}
	if len(ran) != 0 {
		t.Errorf("ran = %v, want nothing", ran)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"fetch", "fetch", 0},
		{"fetc", "fetch", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 2}
	if err.ExitCode() != 2 {
		t.Errorf("ExitCode() = %d, want 2", err.ExitCode())
	}
	if err.Error() != "exit code 2" {
		t.Errorf("Error() = %q", err.Error())
	}
}
