package core

// EventLogger is the subset of the observability event log the rule engine
// writes evaluation outcomes to. Defining it here keeps the engine free of
// the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
