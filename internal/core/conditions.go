package core

import (
	"fmt"
	"strings"

	"github.com/medic/medic-conf/pkg/models"
)

// ConditionSpec is the declarative form of a predicate over a fact. All
// populated clauses must hold; Any holds when at least one nested
// condition does and Not inverts its nested condition.
type ConditionSpec struct {
	Forms        []string         `yaml:"forms,omitempty"`
	ContactTypes []string         `yaml:"contact_types,omitempty"`
	Fields       map[string]any   `yaml:"fields,omitempty"`
	HasFields    []string         `yaml:"has_fields,omitempty"`
	HasReports   *bool            `yaml:"has_reports,omitempty"`
	HasForms     []string         `yaml:"has_forms,omitempty"`
	States       []string         `yaml:"states,omitempty"`
	Any          []*ConditionSpec `yaml:"any,omitempty"`
	Not          *ConditionSpec   `yaml:"not,omitempty"`
}

// CompileCondition turns a ConditionSpec into a predicate. A nil spec
// yields a nil predicate, which the evaluator treats as always true.
func CompileCondition(spec *ConditionSpec) (models.Predicate, error) {
	if spec == nil {
		return nil, nil
	}

	var clauses []models.Predicate

	if len(spec.Forms) > 0 {
		forms := toSet(spec.Forms)
		clauses = append(clauses, func(f models.Fact) bool {
			return f.Report != nil && forms[f.Report.Form]
		})
	}

	if len(spec.ContactTypes) > 0 {
		types := toSet(spec.ContactTypes)
		clauses = append(clauses, func(f models.Fact) bool {
			return types[f.Contact.Type] || types[string(models.KindForType(f.Contact.Type))]
		})
	}

	for path, want := range spec.Fields {
		want := fmt.Sprint(want)
		clauses = append(clauses, func(f models.Fact) bool {
			got, ok := lookupField(f, path)
			return ok && fmt.Sprint(got) == want
		})
	}

	for _, path := range spec.HasFields {
		clauses = append(clauses, func(f models.Fact) bool {
			got, ok := lookupField(f, path)
			return ok && got != nil && fmt.Sprint(got) != ""
		})
	}

	if spec.HasReports != nil {
		want := *spec.HasReports
		clauses = append(clauses, func(f models.Fact) bool {
			return f.Contact.HasReports() == want
		})
	}

	if len(spec.HasForms) > 0 {
		forms := toSet(spec.HasForms)
		clauses = append(clauses, func(f models.Fact) bool {
			for _, r := range f.Contact.AllReports() {
				if forms[r.Form] {
					return true
				}
			}
			return false
		})
	}

	if len(spec.States) > 0 {
		states := toSet(spec.States)
		clauses = append(clauses, func(f models.Fact) bool {
			return f.ScheduledTask != nil && states[string(f.ScheduledTask.State)]
		})
	}

	if len(spec.Any) > 0 {
		var alternatives []models.Predicate
		for i, nested := range spec.Any {
			p, err := CompileCondition(nested)
			if err != nil {
				return nil, fmt.Errorf("any[%d]: %w", i, err)
			}
			if p == nil {
				return nil, fmt.Errorf("any[%d]: empty condition", i)
			}
			alternatives = append(alternatives, p)
		}
		clauses = append(clauses, func(f models.Fact) bool {
			for _, p := range alternatives {
				if p(f) {
					return true
				}
			}
			return false
		})
	}

	if spec.Not != nil {
		inner, err := CompileCondition(spec.Not)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		if inner == nil {
			return nil, fmt.Errorf("not: empty condition")
		}
		clauses = append(clauses, func(f models.Fact) bool { return !inner(f) })
	}

	return func(f models.Fact) bool {
		for _, c := range clauses {
			if !c(f) {
				return false
			}
		}
		return true
	}, nil
}

// lookupField resolves a dotted path against the fact's report fields. A
// "contact." prefix resolves against the contact instead: "contact.type",
// "contact.name" and "contact.parent" are supported.
func lookupField(f models.Fact, path string) (any, bool) {
	if rest, ok := strings.CutPrefix(path, "contact."); ok {
		switch rest {
		case "type":
			return f.Contact.Type, true
		case "name":
			return f.Contact.Name, f.Contact.Name != ""
		case "parent":
			if f.Contact.Parent == nil {
				return nil, false
			}
			return f.Contact.Parent.ID, true
		default:
			return nil, false
		}
	}

	if f.Report == nil {
		return nil, false
	}
	var cur any = f.Report.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
