package models

import (
	"encoding/json"
	"time"
)

// Emission type tags as they appear on the wire.
const (
	EmissionTask     = "task"
	EmissionComplete = "_complete"
)

// Emission is one element of an evaluation's output stream: either a
// TaskInstance or the terminal CompletionMarker.
type Emission interface {
	EmissionType() string
	isEmission()
}

// RenderedAction is an action bound to the fact its task was derived from.
type RenderedAction struct {
	Type    string  `json:"type"`
	Form    string  `json:"form"`
	Label   string  `json:"label"`
	Content Content `json:"content"`
}

// DocRef identifies the document a task instance was derived from.
type DocRef struct {
	ID   string `json:"_id"`
	Form string `json:"form,omitempty"`
}

// ContactRef identifies the contact a task instance belongs to.
type ContactRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// TaskInstance is one concrete occurrence of a task.
type TaskInstance struct {
	ID            string           `json:"_id"`
	Date          time.Time        `json:"date"`
	Resolved      bool             `json:"resolved"`
	Title         string           `json:"title,omitempty"`
	Icon          string           `json:"icon,omitempty"`
	Priority      string           `json:"priority,omitempty"`
	PriorityLabel string           `json:"priorityLabel,omitempty"`
	Contact       ContactRef       `json:"contact"`
	Doc           DocRef           `json:"doc"`
	Actions       []RenderedAction `json:"actions"`

	// Back-references, kept out of the wire shape.
	Definition      string `json:"-"`
	EventID         string `json:"-"`
	ScheduledTaskID string `json:"-"`
}

func (TaskInstance) EmissionType() string { return EmissionTask }
func (TaskInstance) isEmission()          {}

// MarshalJSON adds the _type tag.
func (t TaskInstance) MarshalJSON() ([]byte, error) {
	type plain TaskInstance
	return json.Marshal(struct {
		Type string `json:"_type"`
		plain
	}{Type: EmissionTask, plain: plain(t)})
}

// CompletionMarker signals that no further instances will be emitted for
// the evaluated contact.
type CompletionMarker struct{}

func (CompletionMarker) EmissionType() string { return EmissionComplete }
func (CompletionMarker) isEmission()          {}

// MarshalJSON renders the marker as {"_type":"_complete","_id":true}.
func (CompletionMarker) MarshalJSON() ([]byte, error) {
	return []byte(`{"_type":"_complete","_id":true}`), nil
}

// Tasks returns the task instances of an emission stream, dropping the
// completion marker.
func Tasks(emitted []Emission) []TaskInstance {
	tasks := make([]TaskInstance, 0, len(emitted))
	for _, e := range emitted {
		if t, ok := e.(TaskInstance); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}
