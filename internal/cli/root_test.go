package cli

import (
	"bytes"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"status", "run", "resume", "watch", "prompts", "videos",
		"manual", "upload", "events", "db", "serve", "config", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestPromptsSubcommands(t *testing.T) {
	subcmds := []string{"show", "edit", "save"}
	for _, sub := range subcmds {
		out, err := executeCommand("prompts", sub, "--help")
		if err != nil {
			t.Errorf("prompts %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("prompts %s --help produced no output", sub)
		}
	}
}

func TestVideosSubcommands(t *testing.T) {
	subcmds := []string{"review", "regen", "approve"}
	for _, sub := range subcmds {
		out, err := executeCommand("videos", sub, "--help")
		if err != nil {
			t.Errorf("videos %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("videos %s --help produced no output", sub)
		}
	}
}

func TestManualSubcommands(t *testing.T) {
	subcmds := []string{
		"show", "set-clip", "set-voiceover", "set-cta",
		"add-slot", "remove-slot", "estimate", "run", "watch",
	}
	for _, sub := range subcmds {
		out, err := executeCommand("manual", sub, "--help")
		if err != nil {
			t.Errorf("manual %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("manual %s --help produced no output", sub)
		}
	}
}

func TestConfigAndDBSubcommands(t *testing.T) {
	for _, args := range [][]string{
		{"config", "validate"},
		{"config", "show"},
		{"db", "migrate"},
		{"db", "reset"},
	} {
		out, err := executeCommand(append(args, "--help")...)
		if err != nil {
			t.Errorf("%v --help failed: %v", args, err)
		}
		if out == "" {
			t.Errorf("%v --help produced no output", args)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command")
	}
}
