package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/medic/medic-conf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(t *testing.T, contact *models.Contact, defs ...models.TaskDefinition) []models.Emission {
	t.Helper()
	emitted, err := Evaluate(contact, defs, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, emitted)
	assert.Equal(t, models.CompletionMarker{}, emitted[len(emitted)-1], "stream must end with the completion marker")
	return emitted
}

func TestEvaluate_PersonBasedTaskEmitsOnce(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, personWithoutReports(), aPersonBasedTask())

	require.Len(t, emitted, 2)
	task, ok := emitted[0].(models.TaskInstance)
	require.True(t, ok)
	assert.Equal(t, testDay, task.Date)
	assert.False(t, task.Resolved)
	require.Len(t, task.Actions, 1)
	assert.Equal(t, "example-form", task.Actions[0].Form)
}

func TestEvaluate_PlaceBasedTaskEmitsOnce(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, placeWithoutReports(), aPlaceBasedTask())

	require.Len(t, emitted, 2)
	assert.Equal(t, testDay, emitted[0].(models.TaskInstance).Date)
}

func TestEvaluate_PersonBasedTaskIgnoresPlaces(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, placeWithoutReports(), aPersonBasedTask())

	assert.Equal(t, []models.Emission{models.CompletionMarker{}}, emitted)
}

func TestEvaluate_ContactBasedTaskMatchesBothKinds(t *testing.T) {
	resetIDs()

	for _, c := range []*models.Contact{personWithoutReports(), placeWithoutReports()} {
		emitted := evaluate(t, c, aTask(models.AppliesToContact))
		assert.Len(t, emitted, 2, "contact %s", c.ID)
	}
}

func TestEvaluate_ContactBasedUnaffectedByReportCount(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, personWithReports(aReport(), aReport(), aReport()), aPersonBasedTask())

	assert.Len(t, emitted, 2)
}

func TestEvaluate_ReportBasedWithoutReportsEmitsOnlyMarker(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, personWithoutReports(), aReportBasedTask())

	assert.Equal(t, []models.Emission{models.CompletionMarker{}}, emitted)
}

func TestEvaluate_ReportBasedSingleReport(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, personWithReports(aReport()), aReportBasedTask())

	require.Len(t, emitted, 2)
	assert.Equal(t, testDay, emitted[0].(models.TaskInstance).Date)
}

func TestEvaluate_ReportBasedOncePerReport(t *testing.T) {
	resetIDs()
	reports := []models.Report{aReport(), aReport(), aReport()}

	emitted := evaluate(t, personWithReports(reports...), aReportBasedTask())

	require.Len(t, emitted, 4)
	tasks := models.Tasks(emitted)
	for i, task := range tasks {
		assert.Equal(t, reports[i].ID, task.Doc.ID, "instances follow report submission order")
		assert.Equal(t, testDay, task.Date)
	}
	assert.Equal(t, 3, uniqueCount(ids(emitted)))
}

func TestEvaluate_ReportBasedOncePerReportPerTask(t *testing.T) {
	resetIDs()
	first, second := aReportBasedTask(), aReportBasedTask()

	emitted := evaluate(t, personWithReports(aReport(), aReport(), aReport()), first, second)

	require.Len(t, emitted, 7)
	tasks := models.Tasks(emitted)
	for i, task := range tasks {
		want := first.Name
		if i >= 3 {
			want = second.Name
		}
		assert.Equal(t, want, task.Definition, "definitions are the outer loop")
	}
	assert.Equal(t, 6, uniqueCount(ids(emitted)))
}

func TestEvaluate_UnnamedTasksWithoutEventIDsStayUnique(t *testing.T) {
	resetIDs()
	first, second := aReportBasedTask(), aReportBasedTask()
	first.Name, second.Name = "", ""
	event := first.Events[0]
	event.ID = ""
	first.Events = []models.Event{event, event}
	second.Events = []models.Event{event}

	emitted := evaluate(t, personWithReports(aReport()), first, second)

	require.Len(t, emitted, 4)
	assert.Equal(t, 3, uniqueCount(ids(emitted)))
}

func TestEvaluate_IdenticalUnnamedDefinitionsOnSameReport(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.Name = ""
	def.Events[0].ID = ""

	emitted := evaluate(t, personWithReports(aReport()), def, def)

	require.Len(t, emitted, 3)
	assert.Equal(t, 2, uniqueCount(ids(emitted)))
}

func TestEvaluate_IDsAreStableAcrossCalls(t *testing.T) {
	resetIDs()
	contact := personWithReports(aReport(), aReport())
	def := aReportBasedTask()

	first := evaluate(t, contact, def)
	second := evaluate(t, contact, def)

	assert.Equal(t, ids(first), ids(second))
}

func reportOn(id string, day time.Time) models.Report {
	r := aReport()
	r.ID = id
	r.ReportedDate = day.Add(8 * time.Hour)
	return r
}

func TestEvaluate_IDsSurviveWindowChanges(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.Name = "anc"
	def.Events = []models.Event{{Start: 0, End: 7}}
	contact := personWithReports(
		reportOn("r1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		reportOn("r2", time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)),
	)

	before, err := Evaluate(contact, []models.TaskDefinition{def}, time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	after, err := Evaluate(contact, []models.TaskDefinition{def}, time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []string{"anc~r1~_e0", "anc~r2~_e0"}, ids(before))
	assert.Equal(t, []string{"anc~r2~_e0"}, ids(after), "r1 left its window; r2 keeps its id")
}

func TestEvaluate_IDsIgnoreUnrelatedDefinitions(t *testing.T) {
	resetIDs()
	named := aReportBasedTask()
	named.Name = "anc"
	named.Events[0].ID = ""
	unnamed := aReportBasedTask()
	unnamed.Name = ""
	unnamed.Events[0].ID = ""
	contact := personWithReports(aReport(), aReport())

	alone := models.Tasks(evaluate(t, contact, named))
	withOther := models.Tasks(evaluate(t, contact, unnamed, named))

	require.Len(t, alone, 2)
	require.Len(t, withOther, 4)
	assert.Equal(t, alone[0].ID, withOther[2].ID)
	assert.Equal(t, alone[1].ID, withOther[3].ID)
	assert.Equal(t, "anc~"+contact.Reports[0].ID+"~_e0", alone[0].ID)
}

func TestEvaluate_CustomActionContent(t *testing.T) {
	resetIDs()
	task := aReportBasedTask()
	task.Actions[0].ModifyContent = func(f models.Fact, content models.Content) error {
		content["report_id"] = f.Report.ID
		return nil
	}
	contact := personWithReports(aReport())

	emitted := evaluate(t, contact, task)

	require.Len(t, emitted, 2)
	action := emitted[0].(models.TaskInstance).Actions[0]
	assert.Equal(t, "report", action.Type)
	assert.Equal(t, "example-form", action.Form)
	assert.Equal(t, "Follow up", action.Label)
	assert.Equal(t, models.Content{
		"source":    "task",
		"source_id": contact.Reports[0].ID,
		"contact":   map[string]any{"_id": contact.ID},
		"report_id": contact.Reports[0].ID,
	}, action.Content)
}

func TestEvaluate_HookMutationIsPerInstance(t *testing.T) {
	resetIDs()
	task := aReportBasedTask()
	task.ModifyContent = func(f models.Fact, content models.Content) error {
		if f.Report.Form == "special" {
			content["flag"] = true
		}
		return nil
	}
	special := aReport()
	special.Form = "special"

	emitted := evaluate(t, personWithReports(special, aReport()), task)

	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 2)
	assert.Equal(t, true, tasks[0].Actions[0].Content["flag"])
	assert.NotContains(t, tasks[1].Actions[0].Content, "flag")
}

func TestEvaluate_HookFailureAbortsEvaluation(t *testing.T) {
	resetIDs()
	boom := errors.New("boom")
	task := aReportBasedTask()
	task.Actions[0].ModifyContent = func(models.Fact, models.Content) error { return boom }

	emitted, err := Evaluate(personWithReports(aReport()), []models.TaskDefinition{aPersonBasedTask(), task}, testNow)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHookFailed)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, emitted)
}

func TestEvaluate_ScheduledTaskBased(t *testing.T) {
	resetIDs()

	emitted := evaluate(t, personWithReports(aReportWithScheduledTasks(5)), aScheduledTaskBasedTask())

	require.Len(t, emitted, 6)
	for _, task := range models.Tasks(emitted) {
		assert.Equal(t, testDay, task.Date)
		assert.NotEmpty(t, task.ScheduledTaskID)
	}
	assert.Equal(t, 5, uniqueCount(ids(emitted)))
}

func TestEvaluate_ScheduledTasksWalkReportsInOrder(t *testing.T) {
	resetIDs()
	r1, r2 := aReportWithScheduledTasks(2), aReportWithScheduledTasks(1)

	emitted := evaluate(t, personWithReports(r1, r2), aScheduledTaskBasedTask())

	var docs []string
	for _, task := range models.Tasks(emitted) {
		docs = append(docs, task.Doc.ID)
	}
	assert.Equal(t, []string{r1.ID, r1.ID, r2.ID}, docs)
}

func TestEvaluate_ResolvedScheduledTask(t *testing.T) {
	resetIDs()
	r := aReportWithScheduledTasks(2)
	r.ScheduledTasks[1].State = models.StateCleared

	emitted := evaluate(t, personWithReports(r), aScheduledTaskBasedTask())

	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].Resolved)
	assert.True(t, tasks[1].Resolved)
}

func TestEvaluate_UnrecognisedTaskTypeFails(t *testing.T) {
	resetIDs()
	invalid := aScheduledTaskBasedTask()
	invalid.AppliesTo = "unknown"

	emitted, err := Evaluate(personWithReports(aReportWithScheduledTasks(5)),
		[]models.TaskDefinition{aPersonBasedTask(), invalid}, testNow)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnrecognisedTaskType)
	assert.Contains(t, err.Error(), "unrecognised task type: unknown")
	assert.Nil(t, emitted, "no output may be produced before the failure")
}

func TestEvaluate_InvalidWindowFails(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.Events[0] = models.Event{ID: "backwards", Start: 5, End: 1}

	emitted, err := Evaluate(personWithoutReports(), []models.TaskDefinition{def}, testNow)

	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Nil(t, emitted)
}

func TestEvaluate_MissingContactKindFails(t *testing.T) {
	_, err := Evaluate(&models.Contact{ID: "c-1", Type: "data_record"}, nil, testNow)

	assert.ErrorIs(t, err, ErrMissingContactKind)
}

func TestEvaluate_AppliesIfFiltersFacts(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.AppliesIf = func(f models.Fact) bool { return f.Report.Form == "pregnancy" }
	pregnancy := aReport()
	pregnancy.Form = "pregnancy"

	emitted := evaluate(t, personWithReports(aReport(), pregnancy, aReport()), def)

	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 1)
	assert.Equal(t, pregnancy.ID, tasks[0].Doc.ID)
	assert.Equal(t, "pregnancy", tasks[0].Doc.Form)
}

func TestEvaluate_MultipleEventsPerFact(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.Events = []models.Event{{ID: "a", Start: 0, End: 3}, {ID: "b", Start: -2, End: 2}}

	emitted := evaluate(t, personWithReports(aReport()), def)

	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].EventID)
	assert.Equal(t, "b", tasks[1].EventID)
	assert.Equal(t, testDay.AddDate(0, 0, -2), tasks[1].Date)
}

func TestEvaluate_WindowPolicies(t *testing.T) {
	resetIDs()
	future := models.Event{ID: "later", Start: 10, End: 20}

	within := aReportBasedTask()
	within.Events = []models.Event{future}
	always := aReportBasedTask()
	always.Events = []models.Event{future}
	always.WindowPolicy = models.PolicyAlways

	emitted := evaluate(t, personWithReports(aReport()), within, always)

	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 1, "within_window drops the event, always keeps it")
	assert.Equal(t, always.Name, tasks[0].Definition)
	assert.True(t, tasks[0].Resolved)
	assert.Equal(t, testDay.AddDate(0, 0, 10), tasks[0].Date)
}

func TestEvaluate_DefaultPolicyFromEvaluator(t *testing.T) {
	resetIDs()
	def := aReportBasedTask()
	def.Events = []models.Event{{ID: "old", Start: -30, End: -20}}

	emitted, err := NewTaskEvaluator(models.PolicyAlways).Evaluate(personWithReports(aReport()), []models.TaskDefinition{def}, testNow)

	require.NoError(t, err)
	tasks := models.Tasks(emitted)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Resolved)
}

func TestEvaluate_ResolvedIf(t *testing.T) {
	resetIDs()
	def := aPersonBasedTask()
	def.ResolvedIf = func(f models.Fact) bool { return f.Contact.HasReports() }

	tasks := models.Tasks(evaluate(t, personWithReports(aReport()), def))

	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Resolved)
}

func TestEmissions_WireShape(t *testing.T) {
	resetIDs()
	emitted := evaluate(t, personWithReports(aReport()), aReportBasedTask())

	data, err := json.Marshal(emitted)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "task", decoded[0]["_type"])
	assert.NotEmpty(t, decoded[0]["_id"])
	assert.Contains(t, decoded[0], "date")
	assert.Contains(t, decoded[0], "actions")
	assert.Equal(t, map[string]any{"_type": "_complete", "_id": true}, decoded[1])
}
