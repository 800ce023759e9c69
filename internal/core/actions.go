package core

import (
	"fmt"

	"github.com/medic/medic-conf/pkg/models"
)

// Content keys populated on every rendered action.
const (
	ContentSource          = "source"
	ContentSourceID        = "source_id"
	ContentContact         = "contact"
	ContentScheduledTaskID = "scheduled_task_id"

	contentSourceTask = "task"
)

// defaultActionType is used for actions declared without a type.
const defaultActionType = "report"

// BuildActions renders every action of def against fact. The action's own
// hook runs first, then the definition-wide hook; both mutate the content
// in place. A hook error aborts rendering.
func BuildActions(def models.TaskDefinition, fact models.Fact) ([]models.RenderedAction, error) {
	actions := make([]models.RenderedAction, 0, len(def.Actions))
	for i, tmpl := range def.Actions {
		content := defaultContent(fact)

		if tmpl.ModifyContent != nil {
			if err := tmpl.ModifyContent(fact, content); err != nil {
				return nil, fmt.Errorf("action %d of task %q on %s %s: %w: %w", i, def.Name, fact.Kind, FactID(fact), ErrHookFailed, err)
			}
		}
		if def.ModifyContent != nil {
			if err := def.ModifyContent(fact, content); err != nil {
				return nil, fmt.Errorf("task %q on %s %s: %w: %w", def.Name, fact.Kind, FactID(fact), ErrHookFailed, err)
			}
		}

		actionType := tmpl.Type
		if actionType == "" {
			actionType = defaultActionType
		}
		actions = append(actions, models.RenderedAction{
			Type:    actionType,
			Form:    tmpl.Form,
			Label:   tmpl.Label,
			Content: content,
		})
	}
	return actions, nil
}

// defaultContent returns a fresh content payload for fact. Each call
// allocates new maps so hook mutations never leak between instances.
func defaultContent(fact models.Fact) models.Content {
	content := models.Content{
		ContentSource:   contentSourceTask,
		ContentSourceID: DocID(fact),
		ContentContact:  map[string]any{"_id": fact.Contact.ID},
	}
	if fact.Kind == models.FactScheduledTask {
		content[ContentScheduledTaskID] = FactID(fact)
	}
	return content
}
