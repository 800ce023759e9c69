package observability

import (
	"path/filepath"
	"testing"
	"time"
)

func completed(run, contact string, tasks, resolved, overdue int, byDef map[string]any) Event {
	return Event{
		Time:  time.Now().UTC(),
		Level: "INFO",
		Type:  EventEvaluationCompleted,
		Run:   run,
		Data: map[string]any{
			"contact_id":    contact,
			"tasks":         tasks,
			"resolved":      resolved,
			"overdue":       overdue,
			"by_definition": byDef,
		},
	}
}

func failed(run, contact string) Event {
	return Event{
		Time:  time.Now().UTC(),
		Level: "ERROR",
		Type:  EventEvaluationFailed,
		Run:   run,
		Data:  map[string]any{"contact_id": contact, "error": "boom"},
	}
}

func TestMetrics_Empty(t *testing.T) {
	m, err := NewMetricsCalculator(NewMemoryEventLog()).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.EventCount != 0 || m.Evaluations != 0 || m.OldestEvent != nil {
		t.Errorf("expected empty metrics, got %+v", m)
	}
}

func TestMetrics_AggregatesEvaluations(t *testing.T) {
	log := NewMemoryEventLog()
	for _, e := range []Event{
		{Time: time.Now().UTC(), Type: EventRunStarted, Run: "r1"},
		completed("r1", "c-1", 3, 1, 1, map[string]any{"anc": 2, "pnc": 1}),
		completed("r1", "c-2", 1, 0, 0, map[string]any{"anc": 1}),
		failed("r1", "c-3"),
		completed("r2", "c-1", 2, 0, 2, map[string]any{"pnc": 2}),
	} {
		_ = log.Write(e)
	}

	m, err := NewMetricsCalculator(log).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.EventCount != 5 {
		t.Errorf("EventCount = %d, want 5", m.EventCount)
	}
	if m.Evaluations != 4 || m.Failures != 1 {
		t.Errorf("Evaluations/Failures = %d/%d, want 4/1", m.Evaluations, m.Failures)
	}
	if m.Runs != 2 {
		t.Errorf("Runs = %d, want 2", m.Runs)
	}
	if m.ContactsEvaluated != 3 {
		t.Errorf("ContactsEvaluated = %d, want 3", m.ContactsEvaluated)
	}
	if m.TasksEmitted != 6 || m.TasksResolved != 1 || m.TasksOverdue != 3 {
		t.Errorf("tasks emitted/resolved/overdue = %d/%d/%d, want 6/1/3", m.TasksEmitted, m.TasksResolved, m.TasksOverdue)
	}
	if m.TasksByDefinition["anc"] != 3 || m.TasksByDefinition["pnc"] != 3 {
		t.Errorf("TasksByDefinition = %v", m.TasksByDefinition)
	}
}

func TestMetrics_FromJSONLFile(t *testing.T) {
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	defer log.Close()

	rec := NewRecorder(log, "run-json")
	_ = rec.LogEvent(EventEvaluationCompleted, map[string]any{
		"contact_id": "c-1", "tasks": 4, "resolved": 1, "overdue": 2,
		"by_definition": map[string]any{"anc": 4},
	})

	m, err := NewMetricsCalculator(log).Calculate(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TasksEmitted != 4 || m.TasksOverdue != 2 || m.TasksByDefinition["anc"] != 4 {
		t.Errorf("metrics from decoded JSON = %+v", m)
	}
}

func TestMetrics_SinceExcludesOlderEvents(t *testing.T) {
	log := NewMemoryEventLog()
	old := completed("r0", "c-0", 9, 0, 0, nil)
	old.Time = time.Now().UTC().Add(-48 * time.Hour)
	_ = log.Write(old)
	_ = log.Write(completed("r1", "c-1", 1, 0, 0, nil))

	m, err := NewMetricsCalculator(log).Calculate(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Evaluations != 1 || m.TasksEmitted != 1 {
		t.Errorf("expected only the recent evaluation, got %+v", m)
	}
}
