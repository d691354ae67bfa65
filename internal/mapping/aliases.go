package mapping

// globalAliases folds supplier phrasings that are common across the whole
// industry into the wording templates use. Applied to normalized labels
// before any per-template alias memory or fuzzy work.
var globalAliases = map[string]string{
	"tip top size":   "tip top",
	"lure wt":        "lure weight",
	"line wt":        "line weight",
	"model no":       "model",
	"model number":   "model",
	"item no":        "sku",
	"item number":    "sku",
	"no of pieces":   "pieces",
	"number of pcs":  "pieces",
	"rod length":     "length",
	"rod power":      "power",
	"rod action":     "action",
	"number of tips": "tips",
}

// applyGlobalAlias rewrites a normalized label through the global table.
func applyGlobalAlias(normalized string) string {
	if alias, ok := globalAliases[normalized]; ok {
		return alias
	}
	return normalized
}
