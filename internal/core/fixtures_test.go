package core

import (
	"fmt"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// testDay is midnight of the day every fixture is evaluated on.
var testDay = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

// testNow is mid-morning on testDay.
var testNow = testDay.Add(10 * time.Hour)

var idSeq int

func nextID(prefix string) string {
	idSeq++
	return fmt.Sprintf("%s-%d", prefix, idSeq)
}

func resetIDs() { idSeq = 0 }

func anEvent() models.Event {
	return models.Event{ID: "visit", Start: 0, End: 7}
}

func anAction() models.Action {
	return models.Action{Type: "report", Form: "example-form", Label: "Follow up"}
}

func aTask(appliesTo models.AppliesTo) models.TaskDefinition {
	return models.TaskDefinition{
		Name:      nextID("task"),
		AppliesTo: appliesTo,
		Title:     "Follow up",
		Icon:      "icon-follow-up",
		Events:    []models.Event{anEvent()},
		Actions:   []models.Action{anAction()},
	}
}

func aReportBasedTask() models.TaskDefinition        { return aTask(models.AppliesToReport) }
func aPersonBasedTask() models.TaskDefinition        { return aTask(models.AppliesToPerson) }
func aPlaceBasedTask() models.TaskDefinition         { return aTask(models.AppliesToPlace) }
func aScheduledTaskBasedTask() models.TaskDefinition { return aTask(models.AppliesToScheduledTask) }

func aReport() models.Report {
	return models.Report{
		ID:           nextID("r"),
		Form:         "example-form",
		ReportedDate: testDay.Add(8 * time.Hour),
		Fields:       map[string]any{},
	}
}

func aReportWithScheduledTasks(n int) models.Report {
	r := aReport()
	for i := 0; i < n; i++ {
		r.ScheduledTasks = append(r.ScheduledTasks, models.ScheduledTask{
			Due:   testDay,
			State: models.StateScheduled,
		})
	}
	return r
}

func personWithoutReports() *models.Contact {
	return &models.Contact{ID: nextID("c"), Type: "person"}
}

func personWithReports(reports ...models.Report) *models.Contact {
	c := personWithoutReports()
	c.Reports = reports
	return c
}

func placeWithoutReports() *models.Contact {
	return &models.Contact{ID: nextID("c"), Type: "clinic"}
}

func ids(emitted []models.Emission) []string {
	var out []string
	for _, t := range models.Tasks(emitted) {
		out = append(out, t.ID)
	}
	return out
}

func uniqueCount(values []string) int {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return len(set)
}
