package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/internal/observability"
	"github.com/medic/medic-conf/internal/storage"
	"github.com/medic/medic-conf/pkg/models"
)

// project is a rule project directory resolved against the merged
// .medicconf and .medicrc configuration.
type project struct {
	dir      string
	config   *models.MergedConfig
	location *time.Location
	contacts storage.ContactStore
}

// loadProject resolves dir (or the configured default) and loads and
// validates its configuration.
func loadProject(dir string) (*project, error) {
	if ConfigMgr == nil {
		return nil, fmt.Errorf("configuration manager not initialized")
	}
	if dir == "" {
		dir = DefaultProjectDir
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory %s: %w", dir, err)
	}

	cfg, err := ConfigMgr.GetMergedConfig(abs)
	if err != nil {
		return nil, err
	}
	if err := ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.EffectiveTimezone())
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	return &project{
		dir:      abs,
		config:   cfg,
		location: loc,
		contacts: storage.NewContactStore(abs),
	}, nil
}

// compile builds the project's program using the effective window policy.
// Evaluation events go to sink when it is non-nil.
func (p *project) compile(sink core.EventLogger) (*core.Program, error) {
	if Compiler == nil {
		return nil, fmt.Errorf("rules compiler not initialized")
	}
	program, err := Compiler.Compile(p.dir)
	if err != nil {
		return nil, err
	}

	opts := []core.ProgramOption{
		core.WithEvaluator(core.NewTaskEvaluator(p.config.EffectiveWindowPolicy())),
		core.WithLogger(slog.Default()),
	}
	if sink != nil {
		opts = append(opts, core.WithEventLogger(sink))
	}
	program.Configure(opts...)
	return program, nil
}

// now returns the evaluation time: the --now flag when given, otherwise
// the current time in the project's timezone.
func (p *project) now(flag string) (time.Time, error) {
	if flag == "" {
		return time.Now().In(p.location), nil
	}
	return core.ParseNow(flag, p.location)
}

// loadContacts reads the contacts matching args, or the configured glob
// when args is empty. Arguments are taken relative to the working
// directory; the configured glob relative to the project.
func (p *project) loadContacts(args []string) ([]*models.Contact, error) {
	patterns := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", a, err)
		}
		patterns = append(patterns, abs)
	}
	if len(patterns) == 0 {
		patterns = []string{p.config.EffectiveContactsGlob()}
	}
	return p.contacts.Load(patterns...)
}

// newEventSink returns the sink one evaluation run reports to, and the
// run's ID. The sink is nil when observability is disabled.
func newEventSink() (core.EventLogger, string) {
	run := observability.NewRunID()
	var sinks observability.MultiSink
	if EventLog != nil {
		sinks = append(sinks, observability.NewRecorder(EventLog, run))
	}
	if Prom != nil {
		sinks = append(sinks, Prom)
	}
	if len(sinks) == 0 {
		return nil, run
	}
	return sinks, run
}
