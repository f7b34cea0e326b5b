package templates

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
)

// Set holds pre-parsed outbound message templates. Execution uses strict
// missing-key semantics so a typo in a field name fails instead of sending "<no value>".
type Set struct {
	tmpls map[string]*template.Template
}

// NewSet parses every source up front and fails on the first invalid one.
func NewSet(sources map[string]string) (*Set, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	set := &Set{tmpls: make(map[string]*template.Template, len(sources))}
	for _, name := range names {
		text := sources[name]
		if text == "" {
			return nil, fmt.Errorf("templates: %s: template text required", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", name, err)
		}
		set.tmpls[name] = t
	}
	return set, nil
}

// MustSet is NewSet for package-level sources known to be valid.
func MustSet(sources map[string]string) *Set {
	set, err := NewSet(sources)
	if err != nil {
		panic(err)
	}
	return set
}

// Render executes the named template with data.
func (s *Set) Render(name string, data any) (string, error) {
	t, ok := s.tmpls[name]
	if !ok {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
