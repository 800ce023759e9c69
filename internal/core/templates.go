package core

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/medic/medic-conf/pkg/models"
)

// templateData is the data passed to rule templates.
type templateData struct {
	Contact       *models.Contact
	Report        *models.Report
	ScheduledTask *models.ScheduledTask
	Kind          string
	FactID        string
	DocID         string
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"date": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"field": func(r *models.Report, path string) any {
		if r == nil {
			return ""
		}
		v, ok := lookupField(models.Fact{Kind: models.FactReport, Report: r}, path)
		if !ok {
			return ""
		}
		return v
	},
}

// factTemplate is a compiled text template rendered against a fact.
// Static text skips the template engine entirely.
type factTemplate struct {
	static string
	tmpl   *template.Template
}

// compileFactTemplate parses text. Missing map keys are errors at render
// time.
func compileFactTemplate(name, text string) (*factTemplate, error) {
	if !strings.Contains(text, "{{") {
		return &factTemplate{static: text}, nil
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return &factTemplate{tmpl: tmpl}, nil
}

func (ft *factTemplate) render(f models.Fact) (string, error) {
	if ft.tmpl == nil {
		return ft.static, nil
	}
	data := templateData{
		Contact:       f.Contact,
		Report:        f.Report,
		ScheduledTask: f.ScheduledTask,
		Kind:          f.Kind.String(),
		FactID:        FactID(f),
		DocID:         DocID(f),
	}
	var buf bytes.Buffer
	if err := ft.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", ft.tmpl.Name(), err)
	}
	return buf.String(), nil
}

// compileContentHook turns a map of content keys to templates into a hook
// that sets each key on the action content.
func compileContentHook(name string, content map[string]string) (models.ContentHook, error) {
	if len(content) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(content))
	templates := make(map[string]*factTemplate, len(content))
	for key, text := range content {
		ft, err := compileFactTemplate(name+".content."+key, text)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		templates[key] = ft
	}
	sort.Strings(keys)

	return func(f models.Fact, c models.Content) error {
		for _, key := range keys {
			v, err := templates[key].render(f)
			if err != nil {
				return err
			}
			c[key] = v
		}
		return nil
	}, nil
}

// compileTitle returns a title renderer, or nil when the title is static.
func compileTitle(name, text string) (func(models.Fact) (string, error), error) {
	ft, err := compileFactTemplate(name+".title", text)
	if err != nil {
		return nil, err
	}
	if ft.tmpl == nil {
		return nil, nil
	}
	return ft.render, nil
}
