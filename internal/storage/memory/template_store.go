package memory

import (
	"context"
	"sync"

	"github.com/rodforge/supplier-import/internal/importer"
)

// TemplateStore keeps template definitions and per-run mapping snapshots in
// memory. Templates are loaded at startup (or registered by tests) and
// read-only afterwards; snapshots are written once per run.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]importer.Template
	snapshots map[string]importer.MappingSnapshot
}

// NewTemplateStore constructs a TemplateStore.
func NewTemplateStore(templates ...importer.Template) *TemplateStore {
	s := &TemplateStore{
		templates: make(map[string]importer.Template),
		snapshots: make(map[string]importer.MappingSnapshot),
	}
	for _, tpl := range templates {
		s.templates[tpl.ID] = tpl
	}
	return s
}

// Register adds or replaces a template.
func (s *TemplateStore) Register(tpl importer.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.ID] = tpl
}

// GetTemplate returns the template for an ID.
func (s *TemplateStore) GetTemplate(_ context.Context, templateID string) (importer.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[templateID]
	if !ok {
		return importer.Template{}, importer.ErrNotFound
	}
	return tpl, nil
}

// SaveMappingSnapshot stores the mapping inputs a run used, keyed by run ID.
func (s *TemplateStore) SaveMappingSnapshot(_ context.Context, snapshot importer.MappingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.RunID] = snapshot
	return nil
}

// GetMappingSnapshot returns the snapshot recorded for a run.
func (s *TemplateStore) GetMappingSnapshot(_ context.Context, runID string) (importer.MappingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[runID]
	if !ok {
		return importer.MappingSnapshot{}, importer.ErrNotFound
	}
	return snapshot, nil
}
