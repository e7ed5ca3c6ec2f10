// Package notification renders probe notification parts from text templates
// stored as <dir>/<event_type>/<part>.txt.
package notification

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

// TemplateLoader loads and caches templates from a directory.
type TemplateLoader struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewTemplateLoader reads templates from dir.
func NewTemplateLoader(dir string) *TemplateLoader {
	return NewTemplateLoaderFS(os.DirFS(dir))
}

// NewTemplateLoaderFS reads templates from fsys.
func NewTemplateLoaderFS(fsys fs.FS) *TemplateLoader {
	return &TemplateLoader{fsys: fsys, cache: make(map[string]*template.Template)}
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
}

// Render executes the template for eventType and part with ctx.
// It returns event.ErrTemplateNotFound when the file does not exist.
func (l *TemplateLoader) Render(eventType, part string, ctx map[string]any) (string, error) {
	tmpl, err := l.lookup(eventType, part)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", eventType, part, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (l *TemplateLoader) lookup(eventType, part string) (*template.Template, error) {
	name := filepath.ToSlash(filepath.Join(eventType, part+".txt"))

	l.mu.RLock()
	tmpl, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: invalid template path %q", event.ErrTemplateNotFound, name)
	}
	data, err := fs.ReadFile(l.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", event.ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	tmpl, err = template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.mu.Unlock()
	return tmpl, nil
}

// Reset drops every cached template so that edits on disk are picked up.
func (l *TemplateLoader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*template.Template)
}
