package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// ErrUnknownTemplate is returned when a template name is not registered.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// Template names looked up outside the decision table.
const (
	ImagePrompt          = "image_prompt"
	AnalysisIntroduction = "analysis_introduction"
	AnalysisConcept      = "analysis_concept"
	AnalysisLesson       = "analysis_lesson"
	AnalysisResolution   = "analysis_resolution"
)

type templateFile struct {
	Version   int               `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Registry holds parsed prompt templates by name.
type Registry struct {
	raw       map[string]string
	templates map[string]*template.Template
}

// DefaultRegistry parses the embedded templates.
func DefaultRegistry() (*Registry, error) {
	return Parse(defaultTemplates)
}

// LoadRegistry returns the embedded templates overlaid with the ones in
// path. An empty path returns the embedded set.
func LoadRegistry(path string) (*Registry, error) {
	reg, err := DefaultRegistry()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	custom, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("templates %s: %w", path, err)
	}
	maps.Copy(reg.raw, custom.raw)
	maps.Copy(reg.templates, custom.templates)
	return reg, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal templates: %w", err)
	}

	reg := &Registry{
		raw:       make(map[string]string, len(f.Templates)),
		templates: make(map[string]*template.Template, len(f.Templates)),
	}
	for name, text := range f.Templates {
		t, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		reg.raw[name] = text
		reg.templates[name] = t
	}
	return reg, nil
}

// Render executes the named template with data.
func (r *Registry) Render(name string, data any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Text returns the unrendered text of a template.
func (r *Registry) Text(name string) (string, error) {
	text, ok := r.raw[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return strings.TrimSpace(text), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.templates))
}
