package core

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/medic/medic-conf/pkg/models"
	"pgregory.net/rapid"
)

// =============================================================================
// Generators
// =============================================================================

type globalConfigValues struct {
	ContactsGlob  string
	Workers       int
	WindowPolicy  models.WindowPolicy
	Timezone      string
	EventLog      bool
	WatchDebounce string
	MaxFailures   int
	MaxOverdue    int
}

func genGlobalConfigValues(t *rapid.T) globalConfigValues {
	return globalConfigValues{
		ContactsGlob:  rapid.SampledFrom([]string{"contacts/**/*.json", "data/*.yaml", "fixtures/**/*.yml"}).Draw(t, "glob"),
		Workers:       rapid.IntRange(1, 64).Draw(t, "workers"),
		WindowPolicy:  rapid.SampledFrom([]models.WindowPolicy{models.PolicyWithinWindow, models.PolicyAlways}).Draw(t, "policy"),
		Timezone:      rapid.SampledFrom([]string{"UTC", "Africa/Nairobi", "Asia/Kathmandu", "America/Lima"}).Draw(t, "tz"),
		EventLog:      rapid.Bool().Draw(t, "eventLog"),
		WatchDebounce: rapid.SampledFrom([]string{"100ms", "500ms", "2s"}).Draw(t, "debounce"),
		MaxFailures:   rapid.IntRange(0, 100).Draw(t, "maxFailures"),
		MaxOverdue:    rapid.IntRange(0, 1000).Draw(t, "maxOverdue"),
	}
}

func (v globalConfigValues) yaml() string {
	return fmt.Sprintf(`contacts:
  glob: %q
evaluation:
  workers: %d
  window_policy: %s
  timezone: %s
observability:
  event_log: %t
watch:
  debounce: %s
notifications:
  alerts:
    max_failures: %d
    max_overdue_tasks: %d
`, v.ContactsGlob, v.Workers, v.WindowPolicy, v.Timezone, v.EventLog, v.WatchDebounce, v.MaxFailures, v.MaxOverdue)
}

// =============================================================================
// Properties
// =============================================================================

// Every value written to .medicconf is read back unchanged, and a config
// built from valid values always validates.
func TestProperty_GlobalConfigRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vals := genGlobalConfigValues(t)

		dir, err := os.MkdirTemp("", "medicconf-prop-*")
		if err != nil {
			t.Fatalf("tempdir: %v", err)
		}
		defer func() { _ = os.RemoveAll(dir) }()
		if err := os.WriteFile(filepath.Join(dir, ".medicconf.yaml"), []byte(vals.yaml()), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}

		cm := NewConfigurationManager(dir)
		cfg, err := cm.LoadGlobalConfig()
		if err != nil {
			t.Fatalf("load: %v", err)
		}

		if cfg.ContactsGlob != vals.ContactsGlob {
			t.Fatalf("ContactsGlob = %q, want %q", cfg.ContactsGlob, vals.ContactsGlob)
		}
		if cfg.Workers != vals.Workers {
			t.Fatalf("Workers = %d, want %d", cfg.Workers, vals.Workers)
		}
		if cfg.WindowPolicy != vals.WindowPolicy {
			t.Fatalf("WindowPolicy = %q, want %q", cfg.WindowPolicy, vals.WindowPolicy)
		}
		if cfg.Timezone != vals.Timezone {
			t.Fatalf("Timezone = %q, want %q", cfg.Timezone, vals.Timezone)
		}
		if cfg.EventLog != vals.EventLog {
			t.Fatalf("EventLog = %t, want %t", cfg.EventLog, vals.EventLog)
		}
		if cfg.WatchDebounce != vals.WatchDebounce {
			t.Fatalf("WatchDebounce = %q, want %q", cfg.WatchDebounce, vals.WatchDebounce)
		}
		if cfg.Notifications.Alerts.MaxFailures != vals.MaxFailures || cfg.Notifications.Alerts.MaxOverdueTasks != vals.MaxOverdue {
			t.Fatalf("Alerts = %+v, want %d/%d", cfg.Notifications.Alerts, vals.MaxFailures, vals.MaxOverdue)
		}

		if err := cm.ValidateConfig(cfg); err != nil {
			t.Fatalf("valid config rejected: %v", err)
		}
	})
}

// Project settings always win over global ones when present.
func TestProperty_MergedConfigPrecedence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		global := genGlobalConfigValues(t)
		projectTZ := rapid.SampledFrom([]string{"", "Africa/Kampala", "Europe/Lisbon"}).Draw(t, "projectTZ")
		projectPolicy := rapid.SampledFrom([]models.WindowPolicy{"", models.PolicyAlways, models.PolicyWithinWindow}).Draw(t, "projectPolicy")

		merged := &models.MergedConfig{
			GlobalConfig: models.GlobalConfig{Timezone: global.Timezone, WindowPolicy: global.WindowPolicy},
			Project:      &models.ProjectConfig{Timezone: projectTZ, WindowPolicy: projectPolicy},
		}

		wantTZ := global.Timezone
		if projectTZ != "" {
			wantTZ = projectTZ
		}
		wantPolicy := global.WindowPolicy
		if projectPolicy != "" {
			wantPolicy = projectPolicy
		}
		if got := merged.EffectiveTimezone(); got != wantTZ {
			t.Fatalf("EffectiveTimezone = %q, want %q", got, wantTZ)
		}
		if got := merged.EffectiveWindowPolicy(); got != wantPolicy {
			t.Fatalf("EffectiveWindowPolicy = %q, want %q", got, wantPolicy)
		}
	})
}
