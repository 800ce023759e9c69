package models

// AppliesTo is the category of fact a task or target definition matches.
type AppliesTo string

const (
	AppliesToContact       AppliesTo = "contact"
	AppliesToPerson        AppliesTo = "person"
	AppliesToPlace         AppliesTo = "place"
	AppliesToReport        AppliesTo = "report"
	AppliesToScheduledTask AppliesTo = "scheduledTask"
)

// WindowPolicy controls how events outside their actionable window are
// treated.
type WindowPolicy string

const (
	// PolicyWithinWindow drops events whose window excludes now.
	PolicyWithinWindow WindowPolicy = "within_window"
	// PolicyAlways emits every event and marks it resolved when its window
	// excludes now.
	PolicyAlways WindowPolicy = "always"
)

// FactKind tags which member of a Fact is the matched fact.
type FactKind int

const (
	FactContact FactKind = iota
	FactReport
	FactScheduledTask
)

func (k FactKind) String() string {
	switch k {
	case FactContact:
		return "contact"
	case FactReport:
		return "report"
	case FactScheduledTask:
		return "scheduledTask"
	default:
		return "unknown"
	}
}

// Fact is the unit a definition is evaluated against. Contact is always
// set; Report is set for report and scheduled-task facts; ScheduledTask is
// set for scheduled-task facts only.
type Fact struct {
	Kind          FactKind
	Contact       *Contact
	Report        *Report
	ScheduledTask *ScheduledTask
	// Index is the scheduled task's position within its report. It keeps
	// identifiers stable for scheduled tasks stored without an _id.
	Index int
}

// Content is the payload handed to the form an action opens.
type Content map[string]any

// ContentHook mutates generated action content for one matched fact.
type ContentHook func(fact Fact, content Content) error

// Predicate is a boolean condition over a matched fact.
type Predicate func(fact Fact) bool

// Event is one due-date window within a task definition. Start and End are
// day offsets from the matched fact's reference date.
type Event struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
}

// Action is a follow-up the health worker can take from a task.
type Action struct {
	Type          string      `json:"type" yaml:"type"`
	Form          string      `json:"form" yaml:"form"`
	Label         string      `json:"label" yaml:"label"`
	ModifyContent ContentHook `json:"-" yaml:"-"`
}

// TaskDefinition is a declarative rule describing when to surface a task.
// Name is optional; identifiers stay unique without it.
type TaskDefinition struct {
	Name          string       `json:"name,omitempty" yaml:"name,omitempty"`
	AppliesTo     AppliesTo    `json:"appliesTo" yaml:"applies_to"`
	AppliesIf     Predicate    `json:"-" yaml:"-"`
	ResolvedIf    Predicate    `json:"-" yaml:"-"`
	WindowPolicy  WindowPolicy `json:"windowPolicy,omitempty" yaml:"window_policy,omitempty"`
	Title         string       `json:"title,omitempty" yaml:"title,omitempty"`
	Icon          string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Priority      string       `json:"priority,omitempty" yaml:"priority,omitempty"`
	PriorityLabel string       `json:"priorityLabel,omitempty" yaml:"priority_label,omitempty"`
	Events        []Event      `json:"events" yaml:"events"`
	Actions       []Action     `json:"actions" yaml:"actions"`
	ModifyContent ContentHook  `json:"-" yaml:"-"`

	// TitleFunc, when set, renders the title for a matched fact instead of
	// the static Title.
	TitleFunc func(fact Fact) (string, error) `json:"-" yaml:"-"`
}

// TargetDefinition aggregates statistics across the contact population.
type TargetDefinition struct {
	ID        string    `json:"id" yaml:"id"`
	Type      string    `json:"type" yaml:"type"`
	Goal      int       `json:"goal,omitempty" yaml:"goal,omitempty"`
	AppliesTo AppliesTo `json:"appliesTo" yaml:"applies_to"`
	AppliesIf Predicate `json:"-" yaml:"-"`
	PassesIf  Predicate `json:"-" yaml:"-"`
}

// RuleInput is the configuration surface of one evaluation call.
type RuleInput struct {
	Contact *Contact           `json:"c"`
	Targets []TargetDefinition `json:"targets"`
	Tasks   []TaskDefinition   `json:"tasks"`
}
