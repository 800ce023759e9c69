package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types written by the rule engine.
const (
	EventEvaluationCompleted = "evaluation.completed"
	EventEvaluationFailed    = "evaluation.failed"
	EventRunStarted          = "run.started"
	EventRunFinished         = "run.finished"
)

// Event represents a single observable event in the system.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "evaluation.completed"
	Run     string         `json:"run,omitempty"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
	Run   string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using append-only JSONL files.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the
// given path, creating its directory when needed.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// Write appends a JSON-encoded event followed by a newline to the log file.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	unlock, err := lockFile(l.file)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log file and returns the events matching filter.
// Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// memoryEventLog keeps events in memory. It backs the watch loop and the
// MCP server when no event log file is configured.
type memoryEventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEventLog creates an EventLog that never touches disk.
func NewMemoryEventLog() EventLog {
	return &memoryEventLog{}
}

func (l *memoryEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *memoryEventLog) Read(filter EventFilter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if matchesEventFilter(e, filter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memoryEventLog) Close() error { return nil }

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.Run != "" && event.Run != filter.Run {
		return false
	}
	return true
}

// Recorder stamps engine events with a run ID and writes them to an
// EventLog. It satisfies the rule engine's EventLogger.
type Recorder struct {
	log   EventLog
	run   string
	clock func() time.Time
}

// NewRecorder creates a Recorder for one evaluation run. An empty runID
// draws a fresh one.
func NewRecorder(log EventLog, runID string) *Recorder {
	if runID == "" {
		runID = NewRunID()
	}
	return &Recorder{log: log, run: runID, clock: func() time.Time { return time.Now().UTC() }}
}

// NewRunID returns a new random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// RunID returns the run the recorder stamps on events.
func (r *Recorder) RunID() string { return r.run }

// LogEvent writes one event. Failures are logged at ERROR level.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	level := "INFO"
	if eventType == EventEvaluationFailed {
		level = "ERROR"
	}
	return r.log.Write(Event{
		Time:    r.clock(),
		Level:   level,
		Type:    eventType,
		Run:     r.run,
		Message: eventType,
		Data:    data,
	})
}
