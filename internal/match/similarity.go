// Package match reconciles supplier attribute labels with template fields
// using blended string similarity, and casts accepted values to the field's
// declared type.
package match

import (
	"strconv"
	"strings"

	"github.com/rodforge/supplier-import/internal/textnorm"
)

// Blend weights and bonuses for the similarity score. Exact equality
// short-circuits to 1.0 before any of these apply.
const (
	jaccardWeight   = 0.5
	levWeight       = 0.5
	prefixBonus     = 0.05
	substringBonus  = 0.03
	AcceptanceFloor = 0.45
	ReviewCeiling   = 0.70
)

// jaccard computes set overlap between the token sets of two labels.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, tok := range b {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// levenshtein computes edit distance with the classic two-row DP.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// levenshteinRatio maps edit distance into [0,1], 1 meaning identical.
func levenshteinRatio(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// similarity blends token overlap and edit distance for two already
// normalized labels, returning the score and the contributing components.
func similarity(name, label string) (float64, []string) {
	if name == label && name != "" {
		return 1, []string{"exact"}
	}
	j := jaccard(textnorm.Tokens(name), textnorm.Tokens(label))
	l := levenshteinRatio(name, label)
	score := jaccardWeight*j + levWeight*l
	why := []string{
		"jaccard=" + formatScore(j),
		"levenshtein=" + formatScore(l),
	}
	if hasPrefix(name, label) || hasPrefix(label, name) {
		score += prefixBonus
		why = append(why, "prefix-bonus")
	}
	if contains(name, label) || contains(label, name) {
		score += substringBonus
		why = append(why, "substring-bonus")
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, why
}

func hasPrefix(s, prefix string) bool {
	return s != "" && prefix != "" && strings.HasPrefix(s, prefix)
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
