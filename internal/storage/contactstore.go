package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/medic/medic-conf/pkg/models"
	"gopkg.in/yaml.v3"
)

// ContactStore loads contact documents, with their reports attached, from
// JSON and YAML files.
type ContactStore interface {
	// Match expands patterns relative to the base path and returns the
	// matching contact files sorted by path.
	Match(patterns ...string) ([]string, error)
	// Load reads every contact from the files matching patterns.
	Load(patterns ...string) ([]*models.Contact, error)
	// LoadFile reads the contacts in one file. A file holds either a single
	// contact document or a list of them.
	LoadFile(path string) ([]*models.Contact, error)
}

type fileContactStore struct {
	basePath string
}

// NewContactStore creates a ContactStore resolving relative patterns
// against basePath.
func NewContactStore(basePath string) ContactStore {
	return &fileContactStore{basePath: basePath}
}

var contactExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// IsContactFile reports whether path has a supported contact document
// extension.
func IsContactFile(path string) bool {
	return contactExtensions[strings.ToLower(filepath.Ext(path))]
}

func (s *fileContactStore) Match(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.basePath, pattern)
		}
		matches, err := doublestar.FilepathGlob(abs)
		if err != nil {
			return nil, fmt.Errorf("matching contacts %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] || !IsContactFile(m) {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *fileContactStore) Load(patterns ...string) ([]*models.Contact, error) {
	files, err := s.Match(patterns...)
	if err != nil {
		return nil, err
	}
	var contacts []*models.Contact
	for _, f := range files {
		loaded, err := s.LoadFile(f)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, loaded...)
	}
	return contacts, nil
}

func (s *fileContactStore) LoadFile(path string) ([]*models.Contact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contact file %s: %w", path, err)
	}
	docs, err := decodeContactDocs(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("parsing contact file %s: %w", path, err)
	}

	contacts := make([]*models.Contact, 0, len(docs))
	for i, doc := range docs {
		c, err := doc.toContact()
		if err != nil {
			return nil, fmt.Errorf("contact %d in %s: %w", i, path, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// ParseContacts decodes contact documents from memory. isJSON selects the
// JSON decoder; otherwise data is read as YAML.
func ParseContacts(data []byte, isJSON bool) ([]*models.Contact, error) {
	docs, err := decodeContactDocs(data, isJSON)
	if err != nil {
		return nil, err
	}
	contacts := make([]*models.Contact, 0, len(docs))
	for i, doc := range docs {
		c, err := doc.toContact()
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func decodeContactDocs(data []byte, isJSON bool) ([]contactDoc, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if isJSON {
		if trimmed[0] == '[' {
			var docs []contactDoc
			if err := json.Unmarshal(trimmed, &docs); err != nil {
				return nil, err
			}
			return docs, nil
		}
		var doc contactDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		return []contactDoc{doc}, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	if root.Content[0].Kind == yaml.SequenceNode {
		var docs []contactDoc
		if err := root.Content[0].Decode(&docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	var doc contactDoc
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, err
	}
	return []contactDoc{doc}, nil
}

// contactDoc is the on-disk shape of a contact. Configurable hierarchies
// store the real type in contact_type under type "contact".
type contactDoc struct {
	ID           string            `json:"_id" yaml:"_id"`
	Type         string            `json:"type" yaml:"type"`
	ContactType  string            `json:"contact_type,omitempty" yaml:"contact_type,omitempty"`
	Kind         string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Parent       *models.ParentRef `json:"parent,omitempty" yaml:"parent,omitempty"`
	ReportedDate docTime           `json:"reported_date" yaml:"reported_date"`
	Reports      []reportDoc       `json:"reports,omitempty" yaml:"reports,omitempty"`
}

type reportDoc struct {
	ID             string             `json:"_id" yaml:"_id"`
	Form           string             `json:"form" yaml:"form"`
	ReportedDate   docTime            `json:"reported_date" yaml:"reported_date"`
	Fields         map[string]any     `json:"fields,omitempty" yaml:"fields,omitempty"`
	ScheduledTasks []scheduledTaskDoc `json:"scheduled_tasks,omitempty" yaml:"scheduled_tasks,omitempty"`
}

type scheduledTaskDoc struct {
	ID    string  `json:"_id,omitempty" yaml:"_id,omitempty"`
	Due   docTime `json:"due" yaml:"due"`
	State string  `json:"state,omitempty" yaml:"state,omitempty"`
}

func (d contactDoc) toContact() (*models.Contact, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("_id is required")
	}
	docType := d.Type
	if docType == "contact" && d.ContactType != "" {
		docType = d.ContactType
	}

	c := &models.Contact{
		ID:           d.ID,
		Type:         docType,
		Kind:         models.ContactKind(d.Kind),
		Name:         d.Name,
		Parent:       d.Parent,
		ReportedDate: d.ReportedDate.Time,
	}
	for i, r := range d.Reports {
		if r.ID == "" {
			return nil, fmt.Errorf("contact %s: report %d: _id is required", d.ID, i)
		}
		report := models.Report{
			ID:           r.ID,
			Form:         r.Form,
			ReportedDate: r.ReportedDate.Time,
			Fields:       r.Fields,
		}
		for _, st := range r.ScheduledTasks {
			report.ScheduledTasks = append(report.ScheduledTasks, models.ScheduledTask{
				ID:    st.ID,
				Due:   st.Due.Time,
				State: models.ScheduledTaskState(st.State),
			})
		}
		c.Reports = append(c.Reports, report)
	}
	return c, nil
}

// docTime accepts CHT dates as epoch milliseconds or as RFC3339 or
// YYYY-MM-DD strings.
type docTime struct {
	time.Time
}

func (d *docTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return d.parse(s)
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("date %s: expected epoch milliseconds or a date string", b)
	}
	d.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (d *docTime) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", n.Line)
	}
	switch n.Tag {
	case "!!null":
		return nil
	case "!!int":
		var ms int64
		if err := n.Decode(&ms); err != nil {
			return err
		}
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	default:
		return d.parse(n.Value)
	}
}

func (d *docTime) parse(s string) error {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("date %q: expected RFC3339 or YYYY-MM-DD", s)
}
