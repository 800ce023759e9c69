// Package mcp provides an MCP (Model Context Protocol) server that exposes
// rule evaluation as MCP tools, so assistants can inspect the tasks a
// project's rules produce for a contact.
package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/internal/observability"
	"github.com/medic/medic-conf/internal/storage"
	"github.com/medic/medic-conf/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the rule engine and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	compiler    core.RulesCompiler
	projectDir  string
	contacts    storage.ContactStore
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	location    *time.Location
	policy      models.WindowPolicy
	clock       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithObservability exposes metrics and alerts. Either may be nil.
func WithObservability(metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine) Option {
	return func(s *Server) {
		s.metricsCalc = metricsCalc
		s.alertEngine = alertEngine
	}
}

// WithLocation sets the timezone used for "now" and for date-only inputs.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.location = loc }
}

// WithWindowPolicy sets the project's default window policy for
// definitions that do not name one.
func WithWindowPolicy(policy models.WindowPolicy) Option {
	return func(s *Server) { s.policy = policy }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer creates an MCP server evaluating the rule project in
// projectDir. Contact files named by tools resolve through contacts.
func NewServer(compiler core.RulesCompiler, projectDir string, contacts storage.ContactStore, version string, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		compiler:   compiler,
		projectDir: projectDir,
		contacts:   contacts,
		location:   time.UTC,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "medic-conf", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type evaluateContactInput struct {
	ContactFile string `json:"contact_file,omitempty" jsonschema:"path of a contact document (JSON or YAML), relative to the project directory"`
	ContactJSON string `json:"contact_json,omitempty" jsonschema:"the contact document itself, as JSON"`
	Now         string `json:"now,omitempty" jsonschema:"evaluation time as RFC3339 or YYYY-MM-DD. Defaults to the current time."`
}

type actionOutput struct {
	Type    string         `json:"type"`
	Form    string         `json:"form"`
	Label   string         `json:"label,omitempty"`
	Content map[string]any `json:"content"`
}

type taskOutput struct {
	ID         string         `json:"id"`
	Date       string         `json:"date"`
	Resolved   bool           `json:"resolved"`
	Title      string         `json:"title,omitempty"`
	Definition string         `json:"definition,omitempty"`
	Event      string         `json:"event,omitempty"`
	DocID      string         `json:"doc_id"`
	Form       string         `json:"form,omitempty"`
	Actions    []actionOutput `json:"actions"`
}

type contactTasksOutput struct {
	ContactID string       `json:"contact_id"`
	Tasks     []taskOutput `json:"tasks"`
	Count     int          `json:"count"`
}

type evaluateContactOutput struct {
	Contacts []contactTasksOutput `json:"contacts"`
	Now      string               `json:"now"`
}

type listDefinitionsInput struct{}

type eventOutput struct {
	ID    string `json:"id,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type definitionOutput struct {
	Name         string        `json:"name,omitempty"`
	AppliesTo    string        `json:"applies_to"`
	WindowPolicy string        `json:"window_policy,omitempty"`
	Conditional  bool          `json:"conditional"`
	Events       []eventOutput `json:"events"`
	Forms        []string      `json:"forms"`
}

type targetOutput struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	AppliesTo string `json:"applies_to"`
	Goal      int    `json:"goal,omitempty"`
}

type listDefinitionsOutput struct {
	Source  string             `json:"source"`
	Tasks   []definitionOutput `json:"tasks"`
	Targets []targetOutput     `json:"targets"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Runs              int            `json:"runs"`
	Evaluations       int            `json:"evaluations"`
	Failures          int            `json:"failures"`
	ContactsEvaluated int            `json:"contacts_evaluated"`
	TasksEmitted      int            `json:"tasks_emitted"`
	TasksResolved     int            `json:"tasks_resolved"`
	TasksOverdue      int            `json:"tasks_overdue"`
	TasksByDefinition map[string]int `json:"tasks_by_definition"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	Run         string `json:"run,omitempty"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "evaluate_contact",
		Description: "Evaluate the project's task rules against a contact document and return the task instances it produces.",
	}, s.handleEvaluateContact)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_definitions",
		Description: "List the task and target definitions compiled from the project's rule files.",
	}, s.handleListDefinitions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated evaluation metrics from the event log: evaluations, failures, tasks emitted and overdue.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts for the latest evaluation run (failed evaluations, overdue tasks).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleEvaluateContact(_ context.Context, _ *gomcp.CallToolRequest, input evaluateContactInput) (*gomcp.CallToolResult, evaluateContactOutput, error) {
	if (input.ContactFile == "") == (input.ContactJSON == "") {
		return errorResult("exactly one of contact_file or contact_json is required"), evaluateContactOutput{}, nil
	}

	now := s.clock().In(s.location)
	if input.Now != "" {
		parsed, err := core.ParseNow(input.Now, s.location)
		if err != nil {
			return errorResult(err.Error()), evaluateContactOutput{}, nil
		}
		now = parsed
	}

	var contacts []*models.Contact
	var err error
	if input.ContactFile != "" {
		path := input.ContactFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.projectDir, path)
		}
		contacts, err = s.contacts.LoadFile(path)
	} else {
		contacts, err = storage.ParseContacts([]byte(input.ContactJSON), true)
	}
	if err != nil {
		return errorResult(fmt.Sprintf("loading contact: %s", err)), evaluateContactOutput{}, nil
	}
	if len(contacts) == 0 {
		return errorResult("no contact document found"), evaluateContactOutput{}, nil
	}

	program, err := s.compiler.Compile(s.projectDir)
	if err != nil {
		return errorResult(fmt.Sprintf("compiling rules: %s", err)), evaluateContactOutput{}, nil
	}
	if s.policy != "" {
		program.Configure(core.WithEvaluator(core.NewTaskEvaluator(s.policy)))
	}

	out := evaluateContactOutput{Now: now.Format(time.RFC3339)}
	for _, c := range contacts {
		emitted, err := program.Run(c, now)
		if err != nil {
			return errorResult(fmt.Sprintf("evaluating contact %s: %s", c.ID, err)), evaluateContactOutput{}, nil
		}
		tasks := models.Tasks(emitted)
		ct := contactTasksOutput{
			ContactID: c.ID,
			Tasks:     make([]taskOutput, len(tasks)),
			Count:     len(tasks),
		}
		for i, t := range tasks {
			ct.Tasks[i] = taskToOutput(t)
		}
		out.Contacts = append(out.Contacts, ct)
	}

	return nil, out, nil
}

func (s *Server) handleListDefinitions(_ context.Context, _ *gomcp.CallToolRequest, _ listDefinitionsInput) (*gomcp.CallToolResult, listDefinitionsOutput, error) {
	program, err := s.compiler.Compile(s.projectDir)
	if err != nil {
		return errorResult(fmt.Sprintf("compiling rules: %s", err)), listDefinitionsOutput{}, nil
	}

	out := listDefinitionsOutput{
		Source:  program.Source,
		Tasks:   make([]definitionOutput, len(program.Tasks)),
		Targets: make([]targetOutput, len(program.Targets)),
	}
	for i, def := range program.Tasks {
		d := definitionOutput{
			Name:         def.Name,
			AppliesTo:    string(def.AppliesTo),
			WindowPolicy: string(def.WindowPolicy),
			Conditional:  def.AppliesIf != nil,
			Events:       make([]eventOutput, len(def.Events)),
			Forms:        make([]string, 0, len(def.Actions)),
		}
		for j, e := range def.Events {
			d.Events[j] = eventOutput{ID: e.ID, Start: e.Start, End: e.End}
		}
		for _, a := range def.Actions {
			d.Forms = append(d.Forms, a.Form)
		}
		out.Tasks[i] = d
	}
	for i, tgt := range program.Targets {
		out.Targets[i] = targetOutput{ID: tgt.ID, Type: tgt.Type, AppliesTo: string(tgt.AppliesTo), Goal: tgt.Goal}
	}

	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Runs:              metrics.Runs,
		Evaluations:       metrics.Evaluations,
		Failures:          metrics.Failures,
		ContactsEvaluated: metrics.ContactsEvaluated,
		TasksEmitted:      metrics.TasksEmitted,
		TasksResolved:     metrics.TasksResolved,
		TasksOverdue:      metrics.TasksOverdue,
		TasksByDefinition: metrics.TasksByDefinition,
		EventCount:        metrics.EventCount,
	}
	if out.TasksByDefinition == nil {
		out.TasksByDefinition = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			Run:         a.Run,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.TaskInstance) taskOutput {
	out := taskOutput{
		ID:         t.ID,
		Date:       t.Date.Format("2006-01-02"),
		Resolved:   t.Resolved,
		Title:      t.Title,
		Definition: t.Definition,
		Event:      t.EventID,
		DocID:      t.Doc.ID,
		Form:       t.Doc.Form,
		Actions:    make([]actionOutput, len(t.Actions)),
	}
	for i, a := range t.Actions {
		out.Actions[i] = actionOutput{Type: a.Type, Form: a.Form, Label: a.Label, Content: a.Content}
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{TasksByDefinition: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time in the past.
func ParseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
