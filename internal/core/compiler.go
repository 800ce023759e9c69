package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/medic/medic-conf/pkg/models"
	"gopkg.in/yaml.v3"
)

// Rule file names. A project uses either the current layout (tasks and
// targets in separate files) or the single legacy file, never both.
const (
	TasksFile       = "tasks.yaml"
	TargetsFile     = "targets.yaml"
	LegacyRulesFile = "rules.yaml"
)

// CurrentRuleFiles lists the files required by the current layout.
var CurrentRuleFiles = []string{TasksFile, TargetsFile}

// RulesCompiler compiles a rule project directory into a Program.
type RulesCompiler interface {
	Compile(projectDir string) (*Program, error)
}

type yamlRulesCompiler struct {
	opts []ProgramOption
}

// NewRulesCompiler creates a RulesCompiler whose programs are built with
// opts.
func NewRulesCompiler(opts ...ProgramOption) RulesCompiler {
	return &yamlRulesCompiler{opts: opts}
}

// ruleFile is the on-disk shape of tasks.yaml, targets.yaml and rules.yaml.
type ruleFile struct {
	Tasks   []taskSpec   `yaml:"tasks"`
	Targets []targetSpec `yaml:"targets"`
}

type taskSpec struct {
	Name          string            `yaml:"name"`
	AppliesTo     string            `yaml:"applies_to"`
	AppliesIf     *ConditionSpec    `yaml:"applies_if"`
	ResolvedIf    *ConditionSpec    `yaml:"resolved_if"`
	WindowPolicy  string            `yaml:"window_policy"`
	Title         string            `yaml:"title"`
	Icon          string            `yaml:"icon"`
	Priority      string            `yaml:"priority"`
	PriorityLabel string            `yaml:"priority_label"`
	Events        []models.Event    `yaml:"events"`
	Actions       []actionSpec      `yaml:"actions"`
	Content       map[string]string `yaml:"content"`
}

type actionSpec struct {
	Type    string            `yaml:"type"`
	Form    string            `yaml:"form"`
	Label   string            `yaml:"label"`
	Content map[string]string `yaml:"content"`
}

type targetSpec struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type"`
	Goal      int            `yaml:"goal"`
	AppliesTo string         `yaml:"applies_to"`
	AppliesIf *ConditionSpec `yaml:"applies_if"`
	PassesIf  *ConditionSpec `yaml:"passes_if"`
}

// Compile reads the rule files of projectDir and compiles them.
func (c *yamlRulesCompiler) Compile(projectDir string) (*Program, error) {
	legacyPath := filepath.Join(projectDir, LegacyRulesFile)

	if fileExists(legacyPath) {
		var present []string
		for _, f := range CurrentRuleFiles {
			if fileExists(filepath.Join(projectDir, f)) {
				present = append(present, f)
			}
		}
		if len(present) > 0 {
			return nil, fmt.Errorf("%w: both legacy and current rule definitions found; you should either have %s or %s files",
				ErrInvalidRules, legacyPath, strings.Join(CurrentRuleFiles, ","))
		}
		rf, err := readRuleFile(legacyPath)
		if err != nil {
			return nil, err
		}
		return c.build(rf, legacyPath)
	}

	var missing []string
	for _, f := range CurrentRuleFiles {
		if !fileExists(filepath.Join(projectDir, f)) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required file(s): %s", ErrInvalidRules, strings.Join(missing, ","))
	}

	tasks, err := readRuleFile(filepath.Join(projectDir, TasksFile))
	if err != nil {
		return nil, err
	}
	targets, err := readRuleFile(filepath.Join(projectDir, TargetsFile))
	if err != nil {
		return nil, err
	}
	return c.build(ruleFile{Tasks: tasks.Tasks, Targets: targets.Targets}, projectDir)
}

// CompileRules compiles a single YAML document holding tasks and targets.
func CompileRules(data []byte, source string, opts ...ProgramOption) (*Program, error) {
	rf, err := decodeRuleFile(bytes.NewReader(data), source)
	if err != nil {
		return nil, err
	}
	return (&yamlRulesCompiler{opts: opts}).build(rf, source)
}

func (c *yamlRulesCompiler) build(rf ruleFile, source string) (*Program, error) {
	tasks := make([]models.TaskDefinition, 0, len(rf.Tasks))
	for i, spec := range rf.Tasks {
		def, err := compileTask(i, spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRules, source, err)
		}
		tasks = append(tasks, def)
	}
	if err := ValidateDefinitions(tasks); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRules, source, err)
	}

	targets := make([]models.TargetDefinition, 0, len(rf.Targets))
	for i, spec := range rf.Targets {
		def, err := compileTarget(i, spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRules, source, err)
		}
		targets = append(targets, def)
	}
	if err := ValidateTargets(targets); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRules, source, err)
	}

	p := NewProgram(tasks, targets, c.opts...)
	p.Source = source
	return p, nil
}

func compileTask(i int, spec taskSpec) (models.TaskDefinition, error) {
	label := spec.Name
	if label == "" {
		label = fmt.Sprintf("tasks[%d]", i)
	}

	appliesIf, err := CompileCondition(spec.AppliesIf)
	if err != nil {
		return models.TaskDefinition{}, fmt.Errorf("task %s applies_if: %w", label, err)
	}
	resolvedIf, err := CompileCondition(spec.ResolvedIf)
	if err != nil {
		return models.TaskDefinition{}, fmt.Errorf("task %s resolved_if: %w", label, err)
	}
	titleFunc, err := compileTitle(label, spec.Title)
	if err != nil {
		return models.TaskDefinition{}, fmt.Errorf("task %s: %w", label, err)
	}
	hook, err := compileContentHook(label, spec.Content)
	if err != nil {
		return models.TaskDefinition{}, fmt.Errorf("task %s: %w", label, err)
	}

	actions := make([]models.Action, 0, len(spec.Actions))
	for j, a := range spec.Actions {
		actionHook, err := compileContentHook(fmt.Sprintf("%s.actions[%d]", label, j), a.Content)
		if err != nil {
			return models.TaskDefinition{}, fmt.Errorf("task %s: %w", label, err)
		}
		actions = append(actions, models.Action{
			Type:          a.Type,
			Form:          a.Form,
			Label:         a.Label,
			ModifyContent: actionHook,
		})
	}

	return models.TaskDefinition{
		Name:          spec.Name,
		AppliesTo:     models.AppliesTo(spec.AppliesTo),
		AppliesIf:     appliesIf,
		ResolvedIf:    resolvedIf,
		WindowPolicy:  models.WindowPolicy(spec.WindowPolicy),
		Title:         spec.Title,
		Icon:          spec.Icon,
		Priority:      spec.Priority,
		PriorityLabel: spec.PriorityLabel,
		Events:        spec.Events,
		Actions:       actions,
		ModifyContent: hook,
		TitleFunc:     titleFunc,
	}, nil
}

func compileTarget(i int, spec targetSpec) (models.TargetDefinition, error) {
	appliesIf, err := CompileCondition(spec.AppliesIf)
	if err != nil {
		return models.TargetDefinition{}, fmt.Errorf("target %d applies_if: %w", i, err)
	}
	passesIf, err := CompileCondition(spec.PassesIf)
	if err != nil {
		return models.TargetDefinition{}, fmt.Errorf("target %d passes_if: %w", i, err)
	}
	return models.TargetDefinition{
		ID:        spec.ID,
		Type:      spec.Type,
		Goal:      spec.Goal,
		AppliesTo: models.AppliesTo(spec.AppliesTo),
		AppliesIf: appliesIf,
		PassesIf:  passesIf,
	}, nil
}

func readRuleFile(path string) (ruleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ruleFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return decodeRuleFile(f, path)
}

func decodeRuleFile(r io.Reader, source string) (ruleFile, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return ruleFile{}, fmt.Errorf("%w: parsing %s: %w", ErrInvalidRules, source, err)
	}
	return rf, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// UndeclaredForms returns the forms referenced by task actions that are
// missing from forms, sorted and without duplicates. An empty forms list
// declares nothing, so nothing is reported.
func UndeclaredForms(p *Program, forms []string) []string {
	if len(forms) == 0 {
		return nil
	}
	declared := toSet(forms)
	seen := make(map[string]bool)
	var missing []string
	for _, def := range p.Tasks {
		for _, a := range def.Actions {
			if a.Form == "" || declared[a.Form] || seen[a.Form] {
				continue
			}
			seen[a.Form] = true
			missing = append(missing, a.Form)
		}
	}
	sort.Strings(missing)
	return missing
}
