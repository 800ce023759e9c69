package core

import (
	"fmt"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// TargetEvaluator evaluates target definitions against one contact's fact
// graph.
type TargetEvaluator interface {
	EvaluateTargets(fm *FactModel, defs []models.TargetDefinition, now time.Time) error
}

// pendingTargetEvaluator stands in until the aggregation contract for
// targets is settled. It accepts an empty definition list and rejects
// anything else with ErrTargetsUnsupported.
type pendingTargetEvaluator struct{}

// NewTargetEvaluator returns the current TargetEvaluator.
func NewTargetEvaluator() TargetEvaluator {
	return pendingTargetEvaluator{}
}

func (pendingTargetEvaluator) EvaluateTargets(_ *FactModel, defs []models.TargetDefinition, _ time.Time) error {
	if len(defs) == 0 {
		return nil
	}
	return fmt.Errorf("%d target definition(s): %w", len(defs), ErrTargetsUnsupported)
}

// ValidateTargets checks target definitions for unrecognised applies-to
// kinds and missing identifiers.
func ValidateTargets(defs []models.TargetDefinition) error {
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("target %d: id is required", i)
		}
		if seen[def.ID] {
			return fmt.Errorf("target %d: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true
		if def.AppliesTo == models.AppliesToScheduledTask || !validAppliesTo[def.AppliesTo] {
			return fmt.Errorf("target %q: %w: %s", def.ID, ErrUnrecognisedTaskType, def.AppliesTo)
		}
	}
	return nil
}
