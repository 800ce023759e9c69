package cli

import (
	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/internal/observability"
)

// Rule engine services, set during app initialization in app.go.
var (
	// BasePath is the directory holding .medicconf and the event log.
	BasePath string
	// DefaultProjectDir is used when a command gets no --project flag.
	DefaultProjectDir string

	ConfigMgr   core.ConfigurationManager
	Compiler    core.RulesCompiler
	ProjectInit core.ProjectInitializer
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
	Prom        *observability.PromCollector
)
