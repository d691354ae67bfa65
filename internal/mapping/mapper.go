// Package mapping composes alias memory, exact lookups and the fuzzy matcher
// into one template mapping pass per extracted record.
package mapping

import (
	"sort"
	"strings"

	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/match"
	"github.com/rodforge/supplier-import/internal/metrics"
	"github.com/rodforge/supplier-import/internal/textnorm"
)

// Reserved key suffixes filled straight from extractor core fields.
const (
	skuKeySuffix   = "primary_variant_sku"
	priceKeySuffix = "primary_variant_price"
)

// Provenance markers for core-field shortcuts.
const (
	provenanceCoreSKU   = "core:sku"
	provenanceCorePrice = "core:price"
)

// Input is one record offered to the mapper.
type Input struct {
	Attributes map[string][]string
	Core       importer.CoreFields
	// Axes supplied by the caller take precedence over axis detection.
	Axes *importer.Axes
}

// candidate is an attribute prepared for lookup.
type candidate struct {
	label      string
	normalized string
	relaxed    string
	value      string
	consumed   bool
}

// MapAttributes resolves a record's attributes onto template fields.
//
// Resolution precedence, per candidate: alias memory, exact field label,
// exact key suffix, a relaxed re-normalization repeat of both, and finally
// the fuzzy matcher over whatever is left on both sides. Callers must not
// reorder these stages.
func MapAttributes(fields []importer.TemplateField, input Input, aliases map[string]string) importer.MapResult {
	result := importer.MapResult{
		FieldValues: make(map[string]any),
		MappedFrom:  make(map[string]string),
	}

	assigned := make(map[string]bool, len(fields))
	fillCoreShortcuts(fields, input.Core, assigned, &result)

	candidates := buildCandidates(input.Attributes)
	byLabel, bySuffix := fieldLookups(fields)

	for i := range candidates {
		cand := &candidates[i]
		key, ok := resolveExact(cand, aliases, byLabel, bySuffix)
		if !ok || assigned[key] {
			continue
		}
		assign(fieldByKey(fields, key), cand.label, cand.value, assigned, &result)
		cand.consumed = true
	}

	result.Axes = resolveAxes(input.Axes, candidates)
	fuzzyFallback(fields, candidates, assigned, &result)

	for i := range candidates {
		if !candidates[i].consumed {
			result.Unmatched = append(result.Unmatched, importer.UnmatchedLabel{
				Label:  candidates[i].label,
				Sample: candidates[i].value,
			})
		}
	}

	result.MissingRequired = missingRequired(fields, assigned)
	result.Status = completionStatus(len(result.MissingRequired))
	return result
}

// fillCoreShortcuts satisfies reserved sku/price fields from extractor core
// data before any attribute work happens.
func fillCoreShortcuts(
	fields []importer.TemplateField,
	core importer.CoreFields,
	assigned map[string]bool,
	result *importer.MapResult,
) {
	for _, f := range fields {
		key := textnorm.Normalize(f.Key)
		switch {
		case strings.HasSuffix(key, skuKeySuffix) && core.SKU != "":
			result.FieldValues[f.Key] = core.SKU
			result.MappedFrom[f.Key] = provenanceCoreSKU
			assigned[f.Key] = true
		case strings.HasSuffix(key, priceKeySuffix) && core.Price != "":
			value, _ := match.Cast(f.Type, core.Price, nil)
			result.FieldValues[f.Key] = value
			result.MappedFrom[f.Key] = provenanceCorePrice
			assigned[f.Key] = true
		}
	}
}

// buildCandidates normalizes attribute labels in deterministic order and
// applies the global alias table.
func buildCandidates(attributes map[string][]string) []candidate {
	labels := make([]string, 0, len(attributes))
	for label := range attributes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	candidates := make([]candidate, 0, len(labels))
	for _, label := range labels {
		values := attributes[label]
		value := ""
		if len(values) > 0 {
			value = strings.Join(values, ", ")
		}
		normalized := applyGlobalAlias(textnorm.Normalize(label))
		if normalized == "" {
			continue
		}
		candidates = append(candidates, candidate{
			label:      label,
			normalized: normalized,
			relaxed:    textnorm.Relax(normalized),
			value:      value,
		})
	}
	return candidates
}

// fieldLookups indexes fields by normalized label and by normalized key
// suffix (key with the guessed template-name prefix stripped).
func fieldLookups(fields []importer.TemplateField) (byLabel, bySuffix map[string]string) {
	byLabel = make(map[string]string, len(fields))
	bySuffix = make(map[string]string, len(fields))
	for _, f := range fields {
		if label := textnorm.Normalize(f.Label); label != "" {
			if _, taken := byLabel[label]; !taken {
				byLabel[label] = f.Key
			}
		}
		if suffix := keySuffix(f.Key); suffix != "" {
			if _, taken := bySuffix[suffix]; !taken {
				bySuffix[suffix] = f.Key
			}
		}
	}
	return byLabel, bySuffix
}

// keySuffix strips the leading template-name prefix from a field key. Keys
// follow a "<prefix>_<name>" convention; the first segment is the guess.
func keySuffix(key string) string {
	idx := strings.Index(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return textnorm.Normalize(key)
	}
	return textnorm.Normalize(key[idx+1:])
}

func resolveExact(
	cand *candidate,
	aliases map[string]string,
	byLabel, bySuffix map[string]string,
) (string, bool) {
	if key, ok := aliases[cand.normalized]; ok {
		return key, true
	}
	if key, ok := byLabel[cand.normalized]; ok {
		return key, true
	}
	if key, ok := bySuffix[cand.normalized]; ok {
		return key, true
	}
	if key, ok := byLabel[cand.relaxed]; ok {
		return key, true
	}
	if key, ok := bySuffix[cand.relaxed]; ok {
		return key, true
	}
	return "", false
}

func fieldByKey(fields []importer.TemplateField, key string) importer.TemplateField {
	for _, f := range fields {
		if f.Key == key {
			return f
		}
	}
	// Alias memory may point at a key the template no longer carries; treat
	// the value as text so the assignment is still visible downstream.
	return importer.TemplateField{Key: key, Type: importer.FieldTypeText}
}

func assign(
	field importer.TemplateField,
	sourceLabel, raw string,
	assigned map[string]bool,
	result *importer.MapResult,
) {
	value, _ := match.Cast(field.Type, raw, nil)
	result.FieldValues[field.Key] = value
	result.MappedFrom[field.Key] = sourceLabel
	assigned[field.Key] = true
}

// Axis labels recognized on rod templates: length/power/action is the
// conventional three-level variant option system.
var axisLabels = [3]string{"length", "power", "action"}

func resolveAxes(provided *importer.Axes, candidates []candidate) importer.Axes {
	if provided != nil {
		return *provided
	}
	var axes importer.Axes
	slots := [3]*string{&axes.O1, &axes.O2, &axes.O3}
	for i, label := range axisLabels {
		for _, cand := range candidates {
			if cand.normalized == label {
				*slots[i] = cand.value
				break
			}
		}
	}
	return axes
}

// fuzzyFallback hands whatever neither alias memory nor the exact ladder
// claimed to the fuzzy matcher.
func fuzzyFallback(
	fields []importer.TemplateField,
	candidates []candidate,
	assigned map[string]bool,
	result *importer.MapResult,
) {
	var openFields []importer.TemplateField
	for _, f := range fields {
		if !assigned[f.Key] {
			openFields = append(openFields, f)
		}
	}
	var open []*candidate
	var pool []match.Candidate
	for i := range candidates {
		if !candidates[i].consumed {
			open = append(open, &candidates[i])
			pool = append(pool, match.Candidate{Label: candidates[i].label, Value: candidates[i].value})
		}
	}
	if len(openFields) == 0 || len(pool) == 0 {
		return
	}

	matched := match.Fields(openFields, pool)
	for _, m := range matched.Matches {
		metrics.ObserveMatchScore(m.Score)
		result.FieldValues[m.Key] = m.CastValue
		result.MappedFrom[m.Key] = m.SourceLabel
		assigned[m.Key] = true
		for _, cand := range open {
			if cand.label == m.SourceLabel {
				cand.consumed = true
				break
			}
		}
	}
}

func missingRequired(fields []importer.TemplateField, assigned map[string]bool) []string {
	var missing []string
	for _, f := range fields {
		if f.Required && !assigned[f.Key] {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// completionStatus grades a record: partial for one or two missing required
// fields, severe from three up.
func completionStatus(missing int) importer.CompletionStatus {
	switch {
	case missing == 0:
		return importer.CompletionComplete
	case missing <= 2:
		return importer.CompletionPartial
	default:
		return importer.CompletionSevere
	}
}
