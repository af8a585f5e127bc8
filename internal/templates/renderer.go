// Package templates renders notification subjects and bodies from a category,
// a template name and a flat variable map.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

var ErrTemplateNotFound = errors.New("template not found")

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type Renderer interface {
	Render(category, name string, vars map[string]string) (Rendered, error)
}

// Source is the raw markup of one template.
type Source struct {
	Subject string
	HTML    string
	Text    string
}

type compiled struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// BuiltinRenderer renders templates registered under category/name keys.
// Templates are compiled once on first use.
type BuiltinRenderer struct {
	mu       sync.RWMutex
	sources  map[string]Source
	compiled map[string]compiled
}

// NewBuiltinRenderer returns a renderer preloaded with the default templates.
func NewBuiltinRenderer() *BuiltinRenderer {
	r := &BuiltinRenderer{
		sources:  make(map[string]Source),
		compiled: make(map[string]compiled),
	}
	for key, src := range defaults {
		r.sources[key] = src
	}
	return r
}

func key(category, name string) string {
	return category + "/" + name
}

// Register adds or replaces a template.
func (r *BuiltinRenderer) Register(category, name string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(category, name)
	r.sources[k] = src
	delete(r.compiled, k)
}

func (r *BuiltinRenderer) Render(category, name string, vars map[string]string) (Rendered, error) {
	tpl, err := r.lookup(category, name)
	if err != nil {
		return Rendered{}, err
	}

	var out Rendered
	var buf bytes.Buffer
	if err := tpl.subject.Execute(&buf, vars); err != nil {
		return Rendered{}, fmt.Errorf("render %s/%s subject: %w", category, name, err)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := tpl.html.Execute(&buf, vars); err != nil {
		return Rendered{}, fmt.Errorf("render %s/%s html: %w", category, name, err)
	}
	out.HTML = buf.String()

	buf.Reset()
	if err := tpl.text.Execute(&buf, vars); err != nil {
		return Rendered{}, fmt.Errorf("render %s/%s text: %w", category, name, err)
	}
	out.Text = buf.String()
	return out, nil
}

func (r *BuiltinRenderer) lookup(category, name string) (compiled, error) {
	k := key(category, name)

	r.mu.RLock()
	tpl, ok := r.compiled[k]
	src, known := r.sources[k]
	r.mu.RUnlock()
	if ok {
		return tpl, nil
	}
	if !known {
		return compiled{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, k)
	}

	// missing variables render as empty strings rather than "<no value>"
	subject, err := texttemplate.New(k + ":subject").Option("missingkey=zero").Parse(src.Subject)
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s subject: %w", k, err)
	}
	html, err := htmltemplate.New(k + ":html").Option("missingkey=zero").Parse(src.HTML)
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s html: %w", k, err)
	}
	text, err := texttemplate.New(k + ":text").Option("missingkey=zero").Parse(src.Text)
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s text: %w", k, err)
	}

	tpl = compiled{subject: subject, html: html, text: text}
	r.mu.Lock()
	r.compiled[k] = tpl
	r.mu.Unlock()
	return tpl, nil
}
