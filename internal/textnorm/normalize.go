// Package textnorm normalizes supplier attribute labels so that lookup and
// fuzzy matching operate on a stable form.
package textnorm

import (
	"regexp"
	"strings"
)

// Supplier pages commonly carry a handful of entities in attribute labels;
// a full HTML decode is unnecessary for label text.
var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&nbsp;", " ",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&lt;", "<",
	"&gt;", ">",
)

var (
	separatorPattern  = regexp.MustCompile(`[-_/]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	unitHintPattern   = regexp.MustCompile(`(?i)\(\s*(?:in|inch|inches|lbs?|oz|mm|cm)\.?\s*\)`)
	trailingPattern   = regexp.MustCompile(`[\s:;,.|]+$`)
	parenPattern      = regexp.MustCompile(`\([^)]*\)`)
	punctPattern      = regexp.MustCompile(`[^\w\s]`)
)

// Normalize canonicalizes a label: entity decoding, separator and whitespace
// collapsing, unit-hint stripping, trailing punctuation removal, lowercasing.
// Pure and idempotent; empty input yields "".
func Normalize(label string) string {
	s := entityReplacer.Replace(label)
	s = unitHintPattern.ReplaceAllString(s, " ")
	s = separatorPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = trailingPattern.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	return strings.TrimSpace(s)
}

// Relax applies a harsher pass on top of Normalize: any remaining
// parenthetical is removed and all punctuation is dropped. Used as the
// last-chance lookup form before a label is declared unmatched.
func Relax(label string) string {
	s := Normalize(label)
	s = parenPattern.ReplaceAllString(s, " ")
	s = punctPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits a normalized label into its word set.
func Tokens(label string) []string {
	s := Normalize(label)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
