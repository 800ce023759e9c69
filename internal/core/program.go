package core

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// Program is a compiled rule project: the task and target definitions
// ready to run against contacts.
type Program struct {
	Tasks   []models.TaskDefinition
	Targets []models.TargetDefinition
	Source  string

	evaluator TaskEvaluator
	targets   TargetEvaluator
	events    EventLogger
	logger    *slog.Logger
}

// ProgramOption configures a Program.
type ProgramOption func(*Program)

// WithEvaluator replaces the default task evaluator.
func WithEvaluator(e TaskEvaluator) ProgramOption {
	return func(p *Program) { p.evaluator = e }
}

// WithEventLogger records one event per evaluation call.
func WithEventLogger(l EventLogger) ProgramOption {
	return func(p *Program) { p.events = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ProgramOption {
	return func(p *Program) { p.logger = l }
}

// NewProgram creates a Program over already-built definitions.
func NewProgram(tasks []models.TaskDefinition, targets []models.TargetDefinition, opts ...ProgramOption) *Program {
	p := &Program{
		Tasks:     tasks,
		Targets:   targets,
		evaluator: NewTaskEvaluator(models.PolicyWithinWindow),
		targets:   NewTargetEvaluator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configure applies opts to an existing Program.
func (p *Program) Configure(opts ...ProgramOption) {
	for _, opt := range opts {
		opt(p)
	}
}

// Run evaluates the program against one contact.
func (p *Program) Run(contact *models.Contact, now time.Time) ([]models.Emission, error) {
	return p.RunInput(models.RuleInput{Contact: contact, Targets: p.Targets, Tasks: p.Tasks}, now)
}

// RunInput evaluates one rule input. Target definitions are validated and
// handed to the target evaluator; while target evaluation is unsupported
// they are skipped with a warning and do not affect the task stream.
func (p *Program) RunInput(input models.RuleInput, now time.Time) ([]models.Emission, error) {
	if err := ValidateTargets(input.Targets); err != nil {
		p.recordFailure(input.Contact, err)
		return nil, err
	}

	emitted, err := p.evaluator.Evaluate(input.Contact, input.Tasks, now)
	if err != nil {
		p.recordFailure(input.Contact, err)
		return nil, err
	}

	if len(input.Targets) > 0 {
		fm, _ := NewFactModel(input.Contact)
		if terr := p.targets.EvaluateTargets(fm, input.Targets, now); terr != nil {
			if !errors.Is(terr, ErrTargetsUnsupported) {
				p.recordFailure(input.Contact, terr)
				return nil, terr
			}
			p.logger.Warn("skipping target evaluation", "contact", input.Contact.ID, "targets", len(input.Targets))
		}
	}

	p.recordSuccess(input.Contact, emitted, now)
	return emitted, nil
}

func (p *Program) recordSuccess(contact *models.Contact, emitted []models.Emission, now time.Time) {
	tasks := models.Tasks(emitted)
	p.logger.Debug("evaluated contact", "contact", contact.ID, "tasks", len(tasks))
	if p.events == nil {
		return
	}

	byDefinition := make(map[string]any)
	overdue := 0
	resolved := 0
	for _, t := range tasks {
		name := t.Definition
		if name == "" {
			name = "(unnamed)"
		}
		n, _ := byDefinition[name].(int)
		byDefinition[name] = n + 1
		if t.Resolved {
			resolved++
		} else if IsOverdue(t, now) {
			overdue++
		}
	}
	p.logEvent("evaluation.completed", map[string]any{
		"contact_id":    contact.ID,
		"tasks":         len(tasks),
		"resolved":      resolved,
		"overdue":       overdue,
		"by_definition": byDefinition,
	})
}

func (p *Program) logEvent(eventType string, data map[string]any) {
	if p.events == nil {
		return
	}
	if err := p.events.LogEvent(eventType, data); err != nil {
		p.logger.Warn("recording event failed", "type", eventType, "error", err)
	}
}

func (p *Program) recordFailure(contact *models.Contact, err error) {
	id := ""
	if contact != nil {
		id = contact.ID
	}
	p.logger.Error("evaluation failed", "contact", id, "error", err)
	p.logEvent("evaluation.failed", map[string]any{
		"contact_id": id,
		"error":      fmt.Sprint(err),
	})
}

// IsOverdue reports whether an unresolved task's due day is before the day
// of now.
func IsOverdue(t models.TaskInstance, now time.Time) bool {
	return !t.Resolved && t.Date.Before(startOfDay(now))
}
