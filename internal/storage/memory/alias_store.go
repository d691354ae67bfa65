package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rodforge/supplier-import/internal/importer"
)

// AliasStore keeps learned label overrides keyed by (template, label).
type AliasStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]importer.AliasEntry
}

// NewAliasStore constructs an AliasStore.
func NewAliasStore() *AliasStore {
	return &AliasStore{entries: make(map[string]map[string]importer.AliasEntry)}
}

// GetAlias returns the entry for a normalized label.
func (s *AliasStore) GetAlias(_ context.Context, templateID, label string) (importer.AliasEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[templateID][label]
	if !ok {
		return importer.AliasEntry{}, importer.ErrNotFound
	}
	return entry, nil
}

// UpsertAlias inserts or replaces the entry for its label.
func (s *AliasStore) UpsertAlias(_ context.Context, templateID string, entry importer.AliasEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byLabel, ok := s.entries[templateID]
	if !ok {
		byLabel = make(map[string]importer.AliasEntry)
		s.entries[templateID] = byLabel
	}
	byLabel[entry.Label] = entry
	return nil
}

// ListAliases returns all entries for a template, sorted by label.
func (s *AliasStore) ListAliases(_ context.Context, templateID string) ([]importer.AliasEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byLabel := s.entries[templateID]
	entries := make([]importer.AliasEntry, 0, len(byLabel))
	for _, entry := range byLabel {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
	return entries, nil
}
