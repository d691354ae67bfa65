// Package importer defines the core types and collaborator interfaces shared
// across the supplier import pipeline: templates, extracted records, mapping
// results, normalized items, and the import job lifecycle.
package importer
