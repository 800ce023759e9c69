package observability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionEvaluationFailures = "evaluation_failures"
	ConditionOverdueTasks       = "overdue_tasks"
)

// maxListedContacts caps the contact IDs quoted in one alert message.
const maxListedContacts = 5

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	Run         string        `json:"run,omitempty"`
	Details     []AlertDetail `json:"details,omitempty"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertDetail is one contact behind an alert: the error of a failed
// evaluation, or the overdue count of a contact.
type AlertDetail struct {
	ContactID string `json:"contact_id"`
	Detail    string `json:"detail"`
}

// AlertThresholds configures when alerts should fire. MaxFailures is the
// number of failed contact evaluations in one run that raises an alert
// (zero disables it); MaxOverdueTasks is the overdue task count a run may
// reach before alerting.
type AlertThresholds struct {
	MaxFailures     int `yaml:"max_failures" json:"max_failures"`
	MaxOverdueTasks int `yaml:"max_overdue_tasks" json:"max_overdue_tasks"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxFailures:     1,
		MaxOverdueTasks: 50,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate checks the most recent evaluation run against the thresholds.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := time.Now().UTC()

	run, events, err := ae.latestRun()
	if err != nil {
		return nil, fmt.Errorf("reading latest run: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	var alerts []Alert
	if a, ok := ae.checkFailures(run, events, now); ok {
		alerts = append(alerts, a)
	}
	if a, ok := ae.checkOverdue(run, events, now); ok {
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// latestRun returns the run ID of the newest evaluation event and every
// evaluation event belonging to that run.
func (ae *alertEngine) latestRun() (string, []Event, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return "", nil, err
	}

	run := ""
	found := false
	for i := len(events) - 1; i >= 0; i-- {
		if isEvaluationEvent(events[i]) {
			run = events[i].Run
			found = true
			break
		}
	}
	if !found {
		return "", nil, nil
	}

	var inRun []Event
	for _, e := range events {
		if isEvaluationEvent(e) && e.Run == run {
			inRun = append(inRun, e)
		}
	}
	return run, inRun, nil
}

func (ae *alertEngine) checkFailures(run string, events []Event, now time.Time) (Alert, bool) {
	if ae.thresholds.MaxFailures <= 0 {
		return Alert{}, false
	}
	var failed []string
	var details []AlertDetail
	for _, e := range events {
		if e.Type != EventEvaluationFailed {
			continue
		}
		id, _ := e.Data["contact_id"].(string)
		reason, _ := e.Data["error"].(string)
		failed = append(failed, id)
		details = append(details, AlertDetail{ContactID: id, Detail: reason})
	}
	if len(failed) < ae.thresholds.MaxFailures {
		return Alert{}, false
	}
	return Alert{
		ID:        alertID("failures", run),
		Condition: ConditionEvaluationFailures,
		Severity:  SeverityHigh,
		Message: fmt.Sprintf("%d contact evaluation(s) failed in the latest run: %s",
			len(failed), listContacts(failed)),
		Run:         run,
		Details:     details,
		TriggeredAt: now,
	}, true
}

func (ae *alertEngine) checkOverdue(run string, events []Event, now time.Time) (Alert, bool) {
	total := 0
	perContact := make(map[string]int)
	for _, e := range events {
		if e.Type != EventEvaluationCompleted {
			continue
		}
		n := intValue(e.Data["overdue"])
		total += n
		if id, _ := e.Data["contact_id"].(string); n > 0 {
			perContact[id] += n
		}
	}
	if total <= ae.thresholds.MaxOverdueTasks {
		return Alert{}, false
	}

	contacts := make([]string, 0, len(perContact))
	for id := range perContact {
		contacts = append(contacts, id)
	}
	sort.Slice(contacts, func(i, j int) bool {
		if perContact[contacts[i]] != perContact[contacts[j]] {
			return perContact[contacts[i]] > perContact[contacts[j]]
		}
		return contacts[i] < contacts[j]
	})
	details := make([]AlertDetail, len(contacts))
	for i, id := range contacts {
		details[i] = AlertDetail{ContactID: id, Detail: fmt.Sprintf("%d overdue task(s)", perContact[id])}
	}

	return Alert{
		ID:        alertID("overdue", run),
		Condition: ConditionOverdueTasks,
		Severity:  SeverityMedium,
		Message: fmt.Sprintf("%d overdue tasks in the latest run, exceeding the maximum of %d (most overdue: %s)",
			total, ae.thresholds.MaxOverdueTasks, listContacts(contacts)),
		Run:         run,
		Details:     details,
		TriggeredAt: now,
	}, true
}

func isEvaluationEvent(e Event) bool {
	return e.Type == EventEvaluationCompleted || e.Type == EventEvaluationFailed
}

func alertID(prefix, run string) string {
	if run == "" {
		return prefix
	}
	if len(run) > 8 {
		run = run[:8]
	}
	return prefix + "-" + run
}

func listContacts(ids []string) string {
	if len(ids) <= maxListedContacts {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(ids[:maxListedContacts], ", "), len(ids)-maxListedContacts)
}
