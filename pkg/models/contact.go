package models

import "time"

// ContactKind distinguishes people from places in the contact hierarchy.
type ContactKind string

const (
	KindPerson ContactKind = "person"
	KindPlace  ContactKind = "place"
)

// placeTypes lists the CHT document types that represent a place.
var placeTypes = map[string]bool{
	"place":             true,
	"clinic":            true,
	"health_center":     true,
	"district_hospital": true,
}

// KindForType maps a raw contact document type to its ContactKind.
// It returns an empty kind when the type is not recognised.
func KindForType(docType string) ContactKind {
	if docType == string(KindPerson) {
		return KindPerson
	}
	if placeTypes[docType] {
		return KindPlace
	}
	return ""
}

// ParentRef points at the place a contact belongs to. Parents nest to
// describe the full place hierarchy.
type ParentRef struct {
	ID     string     `json:"_id" yaml:"_id"`
	Parent *ParentRef `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// Lineage returns the parent IDs from the closest place outwards.
func (p *ParentRef) Lineage() []string {
	var ids []string
	for cur := p; cur != nil; cur = cur.Parent {
		if cur.ID != "" {
			ids = append(ids, cur.ID)
		}
	}
	return ids
}

// Contact is a person or place record together with the reports
// submitted about it. Reports are kept in submission order.
type Contact struct {
	ID           string      `json:"_id" yaml:"_id"`
	Type         string      `json:"type" yaml:"type"`
	Kind         ContactKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Name         string      `json:"name,omitempty" yaml:"name,omitempty"`
	Parent       *ParentRef  `json:"parent,omitempty" yaml:"parent,omitempty"`
	ReportedDate time.Time   `json:"reported_date" yaml:"reported_date"`
	Reports      []Report    `json:"reports,omitempty" yaml:"reports,omitempty"`
}

// AllReports returns the contact's reports in submission order.
func (c *Contact) AllReports() []Report {
	return c.Reports
}

// HasReports reports whether at least one report is attached.
func (c *Contact) HasReports() bool {
	return len(c.Reports) > 0
}

// Report is a submitted form instance attached to a contact.
type Report struct {
	ID             string          `json:"_id" yaml:"_id"`
	Form           string          `json:"form" yaml:"form"`
	ReportedDate   time.Time       `json:"reported_date" yaml:"reported_date"`
	Fields         map[string]any  `json:"fields,omitempty" yaml:"fields,omitempty"`
	ScheduledTasks []ScheduledTask `json:"scheduled_tasks,omitempty" yaml:"scheduled_tasks,omitempty"`
}

// AllScheduledTasks returns the report's scheduled tasks in stored order.
func (r *Report) AllScheduledTasks() []ScheduledTask {
	return r.ScheduledTasks
}

// ScheduledTaskState is the messaging state of a scheduled follow-up.
type ScheduledTaskState string

const (
	StateScheduled ScheduledTaskState = "scheduled"
	StatePending   ScheduledTaskState = "pending"
	StateSent      ScheduledTaskState = "sent"
	StateDelivered ScheduledTaskState = "delivered"
	StateCleared   ScheduledTaskState = "cleared"
	StateMuted     ScheduledTaskState = "muted"
)

// ScheduledTask is a follow-up point previously scheduled inside a report,
// such as an ANC visit window.
type ScheduledTask struct {
	ID    string             `json:"_id,omitempty" yaml:"_id,omitempty"`
	Due   time.Time          `json:"due" yaml:"due"`
	State ScheduledTaskState `json:"state,omitempty" yaml:"state,omitempty"`
}

// Resolved reports whether the scheduled task no longer needs attention.
func (s ScheduledTask) Resolved() bool {
	switch s.State {
	case StateSent, StateDelivered, StateCleared, StateMuted:
		return true
	default:
		return false
	}
}
