// Package internal provides the App struct that wires the rule compiler,
// configuration and observability services together and initializes the
// CLI layer.
package internal

import (
	"os"
	"path/filepath"

	"github.com/medic/medic-conf/internal/cli"
	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/internal/observability"
)

// EventLogFile is the event log written under the base path.
const EventLogFile = ".medic_conf_events.jsonl"

// App holds the service dependencies of medic-conf.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Rules
	Compiler    core.RulesCompiler
	ProjectInit core.ProjectInitializer

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
	Prom        *observability.PromCollector
}

// NewApp creates and wires all components. basePath is the directory
// holding .medicconf (typically the current directory tree or
// MEDIC_CONF_HOME).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	globalCfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		// Fall back to defaults on an unreadable file; validate reports it.
		globalCfg = core.DefaultGlobalConfig()
	}

	// --- Rules ---
	app.Compiler = core.NewRulesCompiler()
	app.ProjectInit = core.NewProjectInitializer()

	// --- Observability ---
	if globalCfg.EventLog {
		app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFile))
		if err != nil {
			// Non-fatal: run without history if the log can't be created.
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		thresholds := observability.DefaultAlertThresholds()
		alerts := globalCfg.Notifications.Alerts
		if alerts.MaxFailures >= 0 {
			thresholds.MaxFailures = alerts.MaxFailures
		}
		if alerts.MaxOverdueTasks > 0 {
			thresholds.MaxOverdueTasks = alerts.MaxOverdueTasks
		}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if globalCfg.Notifications.Enabled && globalCfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(globalCfg.Notifications.Slack.WebhookURL)
	}
	app.Prom = observability.NewPromCollector()

	// --- Wire CLI ---
	cli.BasePath = basePath
	cli.DefaultProjectDir = resolveProjectDir(basePath, globalCfg.ProjectDir)
	cli.ConfigMgr = app.ConfigMgr
	cli.Compiler = app.Compiler
	cli.ProjectInit = app.ProjectInit
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier
	cli.Prom = app.Prom

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

func resolveProjectDir(basePath, dir string) string {
	if dir == "" {
		return basePath
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(basePath, dir)
}

// configFiles are the names under which .medicconf is found.
var configFiles = []string{".medicconf", ".medicconf.yaml", ".medicconf.yml"}

// ResolveBasePath determines the base path holding .medicconf. It checks
// MEDIC_CONF_HOME, then walks up from the current directory, then falls
// back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("MEDIC_CONF_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		for _, name := range configFiles {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
