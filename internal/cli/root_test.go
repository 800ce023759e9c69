package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetVersionInfo(t *testing.T) {
	// Save originals.
	origVersion := appVersion
	origCommit := appCommit
	origDate := appDate
	defer func() {
		appVersion = origVersion
		appCommit = origCommit
		appDate = origDate
	}()

	SetVersionInfo("1.2.3", "abc1234", "2026-02-13")

	if appVersion != "1.2.3" {
		t.Errorf("appVersion = %q, want 1.2.3", appVersion)
	}
	if appCommit != "abc1234" {
		t.Errorf("appCommit = %q, want abc1234", appCommit)
	}
	if appDate != "2026-02-13" {
		t.Errorf("appDate = %q, want 2026-02-13", appDate)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"nonexistent-command"})

	err := Execute()
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecute_VersionSubcommand(t *testing.T) {
	origVersion := appVersion
	origCommit := appCommit
	origDate := appDate
	defer func() {
		appVersion = origVersion
		appCommit = origCommit
		appDate = origDate
	}()
	appVersion = "test-ver"
	appCommit = "test-commit"
	appDate = "test-date"

	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"medic-conf test-ver", "commit: test-commit", "built:  test-date"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestLogLevel(t *testing.T) {
	origVerbose, origSilent := verbose, silent
	defer func() { verbose, silent = origVerbose, origSilent }()

	tests := []struct {
		verbose, silent bool
		want            slog.Level
	}{
		{false, false, slog.LevelWarn},
		{true, false, slog.LevelDebug},
		{false, true, slog.LevelError},
	}
	for _, tt := range tests {
		verbose, silent = tt.verbose, tt.silent
		if got := logLevel(); got != tt.want {
			t.Errorf("logLevel(verbose=%v, silent=%v) = %v, want %v", tt.verbose, tt.silent, got, tt.want)
		}
	}
}

func TestExecute_VerboseAndSilentExclusive(t *testing.T) {
	origVerbose, origSilent := verbose, silent
	defer func() {
		verbose, silent = origVerbose, origSilent
		rootCmd.PersistentFlags().Lookup("verbose").Changed = false
		rootCmd.PersistentFlags().Lookup("silent").Changed = false
	}()

	_, err := runCLI(t, "version", "--verbose", "--silent")
	if err == nil || !strings.Contains(err.Error(), "none of the others can be") {
		t.Errorf("expected a mutually exclusive flags error, got %v", err)
	}
}

func TestVersionCommand_Registration(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "version" {
			found = true
			break
		}
	}
	if !found {
		t.Error("version command not registered on root")
	}
}
