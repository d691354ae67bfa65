package match

import (
	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/textnorm"
)

// Candidate is one supplier attribute offered to the matcher.
type Candidate struct {
	Label string
	Value string
}

// NeedsReviewMarker is appended to Match.Why when the score clears the
// acceptance floor but not the auto-accept ceiling.
const NeedsReviewMarker = "needs-review"

// Fields matches template fields against supplier candidates.
//
// Assignment is greedy and one-to-one: fields are visited in order and each
// takes its best-scoring unconsumed candidate. This is first-come rather
// than globally optimal bipartite assignment; an accepted simplification.
func Fields(fields []importer.TemplateField, candidates []Candidate) importer.MatchResult {
	var result importer.MatchResult
	consumed := make([]bool, len(candidates))
	normalized := make([]string, len(candidates))
	for i, cand := range candidates {
		normalized[i] = textnorm.Normalize(cand.Label)
	}

	for _, field := range fields {
		best, ok := bestCandidate(field, candidates, normalized, consumed)
		if !ok {
			result.Unmapped = append(result.Unmapped, field.Key)
			continue
		}
		consumed[best.index] = true

		m := importer.Match{
			Key:         field.Key,
			SourceLabel: candidates[best.index].Label,
			RawValue:    candidates[best.index].Value,
			Score:       best.score,
			Why:         best.why,
		}
		m.CastValue, m.Why = Cast(field.Type, m.RawValue, m.Why)
		if m.Score < ReviewCeiling {
			m.Why = append(m.Why, NeedsReviewMarker)
		}
		result.Matches = append(result.Matches, m)
	}

	for i, cand := range candidates {
		if !consumed[i] {
			result.SourceUnused = append(result.SourceUnused, cand.Label)
		}
	}
	return result
}

type scoredCandidate struct {
	index int
	score float64
	why   []string
}

// bestCandidate scores every (name, candidate) pair for the field, where the
// name set is the field label plus synonyms, and returns the top unconsumed
// candidate if it clears the acceptance floor.
func bestCandidate(
	field importer.TemplateField,
	candidates []Candidate,
	normalized []string,
	consumed []bool,
) (scoredCandidate, bool) {
	names := make([]string, 0, 1+len(field.Synonyms))
	names = append(names, textnorm.Normalize(field.Label))
	for _, syn := range field.Synonyms {
		names = append(names, textnorm.Normalize(syn))
	}

	best := scoredCandidate{index: -1, score: -1}
	for i := range candidates {
		if consumed[i] {
			continue
		}
		for _, name := range names {
			score, why := similarity(name, normalized[i])
			if score > best.score {
				best = scoredCandidate{index: i, score: score, why: why}
			}
		}
	}
	if best.index < 0 || best.score < AcceptanceFloor {
		return scoredCandidate{}, false
	}
	return best, true
}
