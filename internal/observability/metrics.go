package observability

import (
	"fmt"
	"time"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	Runs              int            `json:"runs"`
	Evaluations       int            `json:"evaluations"`
	Failures          int            `json:"failures"`
	ContactsEvaluated int            `json:"contacts_evaluated"`
	TasksEmitted      int            `json:"tasks_emitted"`
	TasksResolved     int            `json:"tasks_resolved"`
	TasksOverdue      int            `json:"tasks_overdue"`
	TasksByDefinition map[string]int `json:"tasks_by_definition"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{TasksByDefinition: make(map[string]int)}
	m.EventCount = len(events)

	runs := make(map[string]bool)
	contacts := make(map[string]bool)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case EventEvaluationCompleted:
			m.Evaluations++
			m.TasksEmitted += intValue(event.Data["tasks"])
			m.TasksResolved += intValue(event.Data["resolved"])
			m.TasksOverdue += intValue(event.Data["overdue"])
			if byDef, ok := event.Data["by_definition"].(map[string]any); ok {
				for name, n := range byDef {
					m.TasksByDefinition[name] += intValue(n)
				}
			}
		case EventEvaluationFailed:
			m.Evaluations++
			m.Failures++
		default:
			continue
		}

		if event.Run != "" {
			runs[event.Run] = true
		}
		if id, ok := event.Data["contact_id"].(string); ok && id != "" {
			contacts[id] = true
		}
	}

	m.Runs = len(runs)
	m.ContactsEvaluated = len(contacts)
	return m, nil
}

// intValue reads a count from event data. Counts are ints when written in
// process and float64 once decoded from JSON.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
