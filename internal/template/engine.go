package template

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders hook command templates. Templates use text/template syntax
// with the sprig function library, e.g.
//
//	psql -U {{ .options.db_user | default "postgres" }} -c 'CREATE DATABASE {{ .base.database }}'
//
// A reference to a missing key is an error rather than an empty string.
type Engine struct {
	funcs template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		funcs: sprig.TxtFuncMap(),
		cache: make(map[string]*template.Template),
	}
}

// Render executes text against context. Parsed templates are cached by their
// source text.
func (e *Engine) Render(text string, context map[string]interface{}) (string, error) {
	tmpl, err := e.parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func (e *Engine) parse(text string) (*template.Template, error) {
	e.mu.RLock()
	tmpl, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New("hook").Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	e.mu.Lock()
	e.cache[text] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}
