package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "assaykit" {
		t.Errorf("expected Use to be 'assaykit', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	// Check subcommands are registered
	expectedCommands := []string{
		"version", "pivot", "pivot-splits", "collate",
		"concat", "merge-csv", "collate-project", "merge-builds",
		"split", "deal", "stack",
		"qc-flags", "filter-skipped-wells", "remove-data", "validate-map", "eps-prep",
		"drc-json", "extract-biomarkers", "project-keys", "register-analysis",
		"publish", "fetch", "runs",
	}

	for _, expected := range expectedCommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}

	for _, sub := range cmd.Commands() {
		if sub.RunE == nil && sub.Run == nil {
			t.Errorf("command %s has no run function", sub.Name())
		}
		if sub.Example == "" && sub.Name() != "version" {
			t.Errorf("command %s has no example", sub.Name())
		}
	}
}

func TestNewVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-01-01"
	GoVersion = "go1.25"

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	if err := execute(root, []string{"version", "--no-color"}); err != nil {
		t.Fatalf("version failed: %v", err)
	}

	for _, want := range []string{"1.0.0-test", "abc123", "go1.25"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected version output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestPivotFlagDefaults(t *testing.T) {
	cmd := NewPivotCommand()
	tests := map[string]string{
		"rid-header": "rid",
		"cid-header": "profile_id",
		"out":        ".",
		"outname":    "result",
		"format":     "arrow",
	}
	for name, want := range tests {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("flag --%s not defined", name)
			continue
		}
		if f.DefValue != want {
			t.Errorf("--%s default = %q, want %q", name, f.DefValue, want)
		}
	}

	splits := NewPivotSplitsCommand()
	if got := splits.Flags().Lookup("format").DefValue; got != "gct" {
		t.Errorf("pivot-splits --format default = %q, want gct", got)
	}
	if got := splits.Flags().Lookup("data-header").DefValue; got != "LFC" {
		t.Errorf("pivot-splits --data-header default = %q, want LFC", got)
	}

	// Registering pivot-splits must not change the values pivot runs with.
	if pivotLayout.format != "arrow" {
		t.Errorf("pivot format = %q after pivot-splits registration, want arrow", pivotLayout.format)
	}
	if splitsLayout.format != "gct" {
		t.Errorf("pivot-splits format = %q, want gct", splitsLayout.format)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b,,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	var errOut bytes.Buffer
	root := NewRootCommand()
	root.SetErr(&errOut)
	if err := execute(root, []string{"--no-color", "nope"}); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(errOut.String(), "Error:") {
		t.Errorf("expected rendered error, got %q", errOut.String())
	}
}
