package templates

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
)

// Renderer holds named, pre-parsed templates for outbound message bodies.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewRenderer returns an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{templates: make(map[string]*template.Template)}
}

// Register parses tmpl under name with strict missing-key semantics.
func (r *Renderer) Register(name, tmpl string) error {
	if tmpl == "" {
		return fmt.Errorf("templates: template text required for %q", name)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("templates: parse %q: %w", name, err)
	}
	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()
	return nil
}

// Render executes the template registered under name.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %q: %w", name, err)
	}
	return buf.String(), nil
}
