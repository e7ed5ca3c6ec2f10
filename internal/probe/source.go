package probe

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source loads the current probe definitions.
type Source interface {
	Load(ctx context.Context) (*Set, error)
}

// Document is the top-level structure of a probe YAML file.
type Document struct {
	Version string       `yaml:"version"`
	Probes  []Definition `yaml:"probes"`
}

// FileSource reads probes from a YAML file.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string { return s.path }

// Load reads and compiles the file.
func (s *FileSource) Load(_ context.Context) (*Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read probes %s: %w", s.path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("probes %s: %w", s.path, err)
	}
	return set, nil
}

// Parse compiles a probe YAML document.
func Parse(data []byte) (*Set, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return CompileSet(doc.Probes)
}
