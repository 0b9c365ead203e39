package roster

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type rosterFile struct {
	Members []TeamMember `yaml:"members"`
}

// FileSource reads the roster from a YAML file. The parsed roster is cached until Reload.
type FileSource struct {
	path string

	mu      sync.RWMutex
	members []TeamMember
	loaded  bool
}

// NewFileSource creates a roster source backed by the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file path the source reads from.
func (s *FileSource) Path() string {
	return s.path
}

// Members returns the cached roster, loading it on first use.
func (s *FileSource) Members(ctx context.Context) ([]TeamMember, error) {
	s.mu.RLock()
	if s.loaded {
		out := make([]TeamMember, len(s.members))
		copy(out, s.members)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s.Members(ctx)
}

// Reload re-reads the roster file. On error the previously loaded roster is kept.
func (s *FileSource) Reload(_ context.Context) error {
	members, err := ParseFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.members = members
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// ParseFile reads and validates a roster YAML file.
func ParseFile(path string) ([]TeamMember, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes roster YAML of the form `members: [{id, name, github, email}]`.
func Parse(data []byte) ([]TeamMember, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := Validate(f.Members); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}
	return f.Members, nil
}
