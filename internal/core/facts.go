package core

import (
	"fmt"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// FactModel is the read-only fact graph of one contact for one evaluation
// call.
type FactModel struct {
	contact *models.Contact
	kind    models.ContactKind
}

// NewFactModel builds the fact graph for contact. The only validation is
// that the contact resolves to a person or place kind.
func NewFactModel(contact *models.Contact) (*FactModel, error) {
	if contact == nil {
		return nil, fmt.Errorf("building fact model: %w", ErrMissingContactKind)
	}
	kind := contact.Kind
	if kind == "" {
		kind = models.KindForType(contact.Type)
	}
	if kind != models.KindPerson && kind != models.KindPlace {
		return nil, fmt.Errorf("building fact model for contact %q (type %q): %w", contact.ID, contact.Type, ErrMissingContactKind)
	}
	return &FactModel{contact: contact, kind: kind}, nil
}

// Contact returns the root contact.
func (fm *FactModel) Contact() *models.Contact {
	return fm.contact
}

// Kind returns the resolved contact kind.
func (fm *FactModel) Kind() models.ContactKind {
	return fm.kind
}

// ContactFact returns the contact itself as a fact.
func (fm *FactModel) ContactFact() models.Fact {
	return models.Fact{Kind: models.FactContact, Contact: fm.contact}
}

// ReportFacts returns one fact per report in submission order.
func (fm *FactModel) ReportFacts() []models.Fact {
	reports := fm.contact.AllReports()
	facts := make([]models.Fact, 0, len(reports))
	for i := range reports {
		facts = append(facts, models.Fact{
			Kind:    models.FactReport,
			Contact: fm.contact,
			Report:  &reports[i],
		})
	}
	return facts
}

// ScheduledTaskFacts walks reports in submission order and, within each
// report, scheduled tasks in stored order.
func (fm *FactModel) ScheduledTaskFacts() []models.Fact {
	var facts []models.Fact
	reports := fm.contact.AllReports()
	for i := range reports {
		tasks := reports[i].AllScheduledTasks()
		for j := range tasks {
			facts = append(facts, models.Fact{
				Kind:          models.FactScheduledTask,
				Contact:       fm.contact,
				Report:        &reports[i],
				ScheduledTask: &tasks[j],
				Index:         j,
			})
		}
	}
	return facts
}

// FactID returns the identifier a fact contributes to task identifiers.
// Scheduled tasks stored without an _id fall back to their report and
// position.
func FactID(f models.Fact) string {
	switch f.Kind {
	case models.FactReport:
		return f.Report.ID
	case models.FactScheduledTask:
		if f.ScheduledTask.ID != "" {
			return f.ScheduledTask.ID
		}
		return fmt.Sprintf("%s#%d", f.Report.ID, f.Index)
	default:
		return f.Contact.ID
	}
}

// DocID returns the identifier of the document a fact lives in.
func DocID(f models.Fact) string {
	if f.Report != nil {
		return f.Report.ID
	}
	return f.Contact.ID
}

// ReferenceDate returns the date event offsets are measured from: the
// report submission date, the scheduled task's due date, or the contact's
// reported date. A fact without a date is anchored on now.
func ReferenceDate(f models.Fact, now time.Time) time.Time {
	var ref time.Time
	switch f.Kind {
	case models.FactReport:
		ref = f.Report.ReportedDate
	case models.FactScheduledTask:
		ref = f.ScheduledTask.Due
	default:
		ref = f.Contact.ReportedDate
	}
	if ref.IsZero() {
		return now
	}
	return ref
}

// FactResolved reports whether the fact itself is already resolved.
func FactResolved(f models.Fact) bool {
	return f.Kind == models.FactScheduledTask && f.ScheduledTask.Resolved()
}
