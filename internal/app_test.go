package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/medic/medic-conf/internal/cli"
)

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MEDIC_CONF_HOME", tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfig(t *testing.T) {
	for _, name := range configFiles {
		t.Run(name, func(t *testing.T) {
			tmpDir := t.TempDir()
			subDir := filepath.Join(tmpDir, "project", "contacts")
			if err := os.MkdirAll(subDir, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("workers: 2\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			t.Setenv("MEDIC_CONF_HOME", "")
			t.Chdir(subDir)

			if got := ResolveBasePath(); got != tmpDir {
				t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
			}
		})
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MEDIC_CONF_HOME", "")
	t.Chdir(tmpDir)

	cwd, _ := os.Getwd()
	if got := ResolveBasePath(); got != cwd {
		t.Errorf("ResolveBasePath() = %q, want %q", got, cwd)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	base := t.TempDir()

	app, err := NewApp(base)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.ConfigMgr == nil || app.Compiler == nil || app.Prom == nil {
		t.Fatal("core services not wired")
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Fatal("event log is on by default and should wire alerts and metrics")
	}
	if app.Notifier != nil {
		t.Error("notifier should be nil without a webhook")
	}
	if _, err := os.Stat(filepath.Join(base, EventLogFile)); err != nil {
		t.Errorf("event log file not created: %v", err)
	}

	if cli.ConfigMgr != app.ConfigMgr || cli.Compiler != app.Compiler || cli.Prom != app.Prom {
		t.Error("CLI services not wired to the app")
	}
	if cli.DefaultProjectDir != base {
		t.Errorf("DefaultProjectDir = %q, want the base path", cli.DefaultProjectDir)
	}
}

func TestNewApp_FromConfig(t *testing.T) {
	base := t.TempDir()
	cfg := `project:
  dir: rules
observability:
  event_log: false
notifications:
  enabled: true
  slack:
    webhook_url: https://hooks.slack.example/T000
`
	if err := os.WriteFile(filepath.Join(base, ".medicconf"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(base)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.EventLog != nil || app.AlertEngine != nil || app.MetricsCalc != nil {
		t.Error("event history should be off when event_log is false")
	}
	if app.Notifier == nil {
		t.Error("notifier should be wired when a webhook is configured")
	}
	if want := filepath.Join(base, "rules"); cli.DefaultProjectDir != want {
		t.Errorf("DefaultProjectDir = %q, want %q", cli.DefaultProjectDir, want)
	}
	if _, err := os.Stat(filepath.Join(base, EventLogFile)); !os.IsNotExist(err) {
		t.Errorf("event log file should not exist, stat err = %v", err)
	}
}

func TestApp_CloseNilEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestResolveProjectDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs")
	tests := []struct {
		dir, want string
	}{
		{"", "/base"},
		{".", "/base"},
		{"rules", filepath.Join("/base", "rules")},
		{abs, abs},
	}
	for _, tt := range tests {
		if got := resolveProjectDir("/base", tt.dir); got != tt.want {
			t.Errorf("resolveProjectDir(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
