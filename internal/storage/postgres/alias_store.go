package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rodforge/supplier-import/internal/importer"
)

// AliasStore persists learned label overrides in the template_aliases table.
type AliasStore struct {
	pool querier
}

// NewAliasStore constructs a store from an existing pool.
func NewAliasStore(pool querier) (*AliasStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AliasStore{pool: pool}, nil
}

// GetAlias returns the entry for a normalized label.
func (s *AliasStore) GetAlias(ctx context.Context, templateID, label string) (importer.AliasEntry, error) {
	query := `
SELECT label, field_key, source, confidence
FROM template_aliases WHERE template_id = $1 AND label = $2`
	var (
		entry  importer.AliasEntry
		source string
	)
	row := s.pool.QueryRow(ctx, query, templateID, label)
	err := row.Scan(&entry.Label, &entry.FieldKey, &source, &entry.Confidence)
	if errors.Is(err, pgx.ErrNoRows) {
		return importer.AliasEntry{}, importer.ErrNotFound
	}
	if err != nil {
		return importer.AliasEntry{}, fmt.Errorf("select alias: %w", err)
	}
	entry.Source = importer.AliasSource(source)
	return entry, nil
}

// UpsertAlias inserts or replaces the entry for its label.
func (s *AliasStore) UpsertAlias(ctx context.Context, templateID string, entry importer.AliasEntry) error {
	query := `
INSERT INTO template_aliases (template_id, label, field_key, source, confidence)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (template_id, label)
DO UPDATE SET field_key = EXCLUDED.field_key, source = EXCLUDED.source, confidence = EXCLUDED.confidence`
	if _, err := s.pool.Exec(ctx, query,
		templateID, entry.Label, entry.FieldKey, string(entry.Source), entry.Confidence,
	); err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}
	return nil
}

// ListAliases returns all entries for a template, sorted by label.
func (s *AliasStore) ListAliases(ctx context.Context, templateID string) ([]importer.AliasEntry, error) {
	query := `
SELECT label, field_key, source, confidence
FROM template_aliases WHERE template_id = $1 ORDER BY label`
	rows, err := s.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var entries []importer.AliasEntry
	for rows.Next() {
		var (
			entry  importer.AliasEntry
			source string
		)
		if err := rows.Scan(&entry.Label, &entry.FieldKey, &source, &entry.Confidence); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		entry.Source = importer.AliasSource(source)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return entries, nil
}
