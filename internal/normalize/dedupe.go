package normalize

import "github.com/rodforge/supplier-import/internal/importer"

// Dedupe marks the first item per dedupe key as a create and every later
// holder of the same key as an in-batch skip. Input order is preserved so
// the first occurrence always wins.
func Dedupe(items []importer.NormalizedItem) []importer.DedupeOutcome {
	seen := make(map[string]struct{}, len(items))
	outcomes := make([]importer.DedupeOutcome, 0, len(items))
	for _, item := range items {
		key := item.DedupeKey
		if key == "" {
			key = Key(item)
			item.DedupeKey = key
		}
		action := importer.DedupeCreate
		if _, dup := seen[key]; dup {
			action = importer.DedupeSkip
		} else {
			seen[key] = struct{}{}
		}
		outcomes = append(outcomes, importer.DedupeOutcome{Item: item, Action: action})
	}
	return outcomes
}
