package core

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

//go:embed templates
var scaffoldFS embed.FS

// InitConfig holds the parameters for initializing a rule project.
type InitConfig struct {
	ProjectDir   string
	Name         string
	WindowPolicy models.WindowPolicy
	Timezone     string
	// Today is written as the example contact's reported date.
	Today time.Time
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// ProjectInitializer lays out a new rule project.
type ProjectInitializer interface {
	Init(config InitConfig) (*InitResult, error)
}

type projectInitializer struct{}

// NewProjectInitializer creates a new ProjectInitializer.
func NewProjectInitializer() ProjectInitializer {
	return &projectInitializer{}
}

// scaffoldFiles maps embedded templates to their place in a project.
var scaffoldFiles = []struct {
	template string
	target   string
}{
	{"tasks.yaml", TasksFile},
	{"targets.yaml", TargetsFile},
	{"medicrc", ".medicrc"},
	{"example-contact.json", filepath.Join("contacts", "example.json")},
}

// Init creates the project directory layout, rule files and an example
// contact. It is safe to run on an existing project: files and
// directories that already exist are skipped and never overwritten. A
// project holding the legacy rules file only gets the non-rule files.
func (pi *projectInitializer) Init(config InitConfig) (*InitResult, error) {
	if config.ProjectDir == "" {
		return nil, fmt.Errorf("initializing project: directory is required")
	}
	if config.Name == "" {
		config.Name = filepath.Base(config.ProjectDir)
	}
	if config.WindowPolicy == "" {
		config.WindowPolicy = models.PolicyWithinWindow
	}
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if config.Today.IsZero() {
		config.Today = time.Now()
	}
	if err := validateProjectConfig(&models.ProjectConfig{
		WindowPolicy: config.WindowPolicy,
		Timezone:     config.Timezone,
	}); err != nil {
		return nil, fmt.Errorf("initializing project: %w", err)
	}

	result := &InitResult{}
	dirs := []string{
		config.ProjectDir,
		filepath.Join(config.ProjectDir, "contacts"),
		filepath.Join(config.ProjectDir, "forms", "app"),
		filepath.Join(config.ProjectDir, "forms", "contact"),
	}
	for _, dir := range dirs {
		created, err := ensureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("initializing project: creating directory %s: %w", dir, err)
		}
		if created {
			result.Created = append(result.Created, dir)
		} else {
			result.Skipped = append(result.Skipped, dir)
		}
	}

	legacy := fileExists(filepath.Join(config.ProjectDir, LegacyRulesFile))
	data := struct {
		InitConfig
		Today string
	}{config, config.Today.Format("2006-01-02")}

	for _, f := range scaffoldFiles {
		target := filepath.Join(config.ProjectDir, f.target)
		if legacy && (f.target == TasksFile || f.target == TargetsFile) {
			result.Skipped = append(result.Skipped, target)
			continue
		}
		if err := writeFileIfNotExists(target, func() ([]byte, error) {
			return renderScaffold(f.template, data)
		}, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not exist.
// It records created/skipped in the result.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing project: generating content for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("initializing project: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}

// renderScaffold renders the embedded template name with text/template.
func renderScaffold(name string, data any) ([]byte, error) {
	content, err := scaffoldFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
