package core

import (
	"fmt"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// TaskEvaluator computes the emission stream of one contact.
type TaskEvaluator interface {
	Evaluate(contact *models.Contact, defs []models.TaskDefinition, now time.Time) ([]models.Emission, error)
}

// ruleEvaluator implements TaskEvaluator. It holds no mutable state, so a
// single value may serve concurrent calls.
type ruleEvaluator struct {
	defaultPolicy models.WindowPolicy
}

// NewTaskEvaluator creates a TaskEvaluator. defaultPolicy applies to
// definitions that do not declare a window policy; an empty value means
// PolicyWithinWindow.
func NewTaskEvaluator(defaultPolicy models.WindowPolicy) TaskEvaluator {
	if defaultPolicy == "" {
		defaultPolicy = models.PolicyWithinWindow
	}
	return &ruleEvaluator{defaultPolicy: defaultPolicy}
}

// Evaluate runs defs against contact with the within-window default policy.
func Evaluate(contact *models.Contact, defs []models.TaskDefinition, now time.Time) ([]models.Emission, error) {
	return NewTaskEvaluator(models.PolicyWithinWindow).Evaluate(contact, defs, now)
}

// Evaluate validates every definition, then evaluates them in order and
// returns the task instances followed by one completion marker. On error
// nothing is returned: configuration errors are detected before any
// instance is produced and hook errors discard the partial stream.
//
// Instances are ordered by definition, then fact (reports in submission
// order, scheduled tasks report by report), then event.
func (e *ruleEvaluator) Evaluate(contact *models.Contact, defs []models.TaskDefinition, now time.Time) ([]models.Emission, error) {
	fm, err := NewFactModel(contact)
	if err != nil {
		return nil, err
	}
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}

	seq := NewSequencer()
	for i := range defs {
		if err := e.evaluateDefinition(seq, fm, i, defs[i], now); err != nil {
			return nil, err
		}
	}
	return seq.Complete(), nil
}

func (e *ruleEvaluator) evaluateDefinition(seq *Sequencer, fm *FactModel, index int, def models.TaskDefinition, now time.Time) error {
	facts, err := factsFor(fm, def.AppliesTo)
	if err != nil {
		return fmt.Errorf("task %q: %w", def.Name, err)
	}

	policy := def.WindowPolicy
	if policy == "" {
		policy = e.defaultPolicy
	}

	for _, fact := range facts {
		if def.AppliesIf != nil && !def.AppliesIf(fact) {
			continue
		}
		for j, event := range def.Events {
			task, ok, err := buildInstance(def, policy, fact, event, now)
			if err != nil {
				return err
			}
			if ok {
				seq.Emit(task, index, j)
			}
		}
	}
	return nil
}

// factsFor selects the facts a definition matches. Every AppliesTo value
// must have an arm here; anything else is a fatal configuration error.
func factsFor(fm *FactModel, appliesTo models.AppliesTo) ([]models.Fact, error) {
	switch appliesTo {
	case models.AppliesToContact:
		return []models.Fact{fm.ContactFact()}, nil
	case models.AppliesToPerson:
		if fm.Kind() != models.KindPerson {
			return nil, nil
		}
		return []models.Fact{fm.ContactFact()}, nil
	case models.AppliesToPlace:
		if fm.Kind() != models.KindPlace {
			return nil, nil
		}
		return []models.Fact{fm.ContactFact()}, nil
	case models.AppliesToReport:
		return fm.ReportFacts(), nil
	case models.AppliesToScheduledTask:
		return fm.ScheduledTaskFacts(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognisedTaskType, appliesTo)
	}
}

func buildInstance(def models.TaskDefinition, policy models.WindowPolicy, fact models.Fact, event models.Event, now time.Time) (models.TaskInstance, bool, error) {
	window, err := CalculateWindow(event, ReferenceDate(fact, now), now)
	if err != nil {
		return models.TaskInstance{}, false, fmt.Errorf("task %q: %w", def.Name, err)
	}
	if policy == models.PolicyWithinWindow && !window.Actionable {
		return models.TaskInstance{}, false, nil
	}

	resolved := FactResolved(fact) || (def.ResolvedIf != nil && def.ResolvedIf(fact))
	if policy == models.PolicyAlways && !window.Actionable {
		resolved = true
	}

	title := def.Title
	if def.TitleFunc != nil {
		title, err = def.TitleFunc(fact)
		if err != nil {
			return models.TaskInstance{}, false, fmt.Errorf("rendering title of task %q: %w", def.Name, err)
		}
	}

	actions, err := BuildActions(def, fact)
	if err != nil {
		return models.TaskInstance{}, false, err
	}

	task := models.TaskInstance{
		Date:          window.Due,
		Resolved:      resolved,
		Title:         title,
		Icon:          def.Icon,
		Priority:      def.Priority,
		PriorityLabel: def.PriorityLabel,
		Contact:       models.ContactRef{ID: fact.Contact.ID, Name: fact.Contact.Name},
		Doc:           models.DocRef{ID: DocID(fact)},
		Actions:       actions,
		Definition:    def.Name,
		EventID:       event.ID,
	}
	if fact.Report != nil {
		task.Doc.Form = fact.Report.Form
	}
	if fact.Kind == models.FactScheduledTask {
		task.ScheduledTaskID = FactID(fact)
	}
	return task, true, nil
}

// validAppliesTo is the closed set of recognised applies-to kinds.
var validAppliesTo = map[models.AppliesTo]bool{
	models.AppliesToContact:       true,
	models.AppliesToPerson:        true,
	models.AppliesToPlace:         true,
	models.AppliesToReport:        true,
	models.AppliesToScheduledTask: true,
}

// validPolicies is the set of window policies a definition may declare.
var validPolicies = map[models.WindowPolicy]bool{
	"":                        true,
	models.PolicyWithinWindow: true,
	models.PolicyAlways:       true,
}

// ValidateDefinitions checks every definition for configuration errors:
// unrecognised applies-to kinds, unknown window policies and events whose
// start lies after their end.
func ValidateDefinitions(defs []models.TaskDefinition) error {
	for i, def := range defs {
		if !validAppliesTo[def.AppliesTo] {
			return fmt.Errorf("task %d (%q): %w: %s", i, def.Name, ErrUnrecognisedTaskType, def.AppliesTo)
		}
		if !validPolicies[def.WindowPolicy] {
			return fmt.Errorf("task %d (%q): unknown window policy %q", i, def.Name, def.WindowPolicy)
		}
		for _, event := range def.Events {
			if err := validateEvent(event); err != nil {
				return fmt.Errorf("task %d (%q): %w", i, def.Name, err)
			}
		}
	}
	return nil
}
