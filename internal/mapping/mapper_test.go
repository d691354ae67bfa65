package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func rodTemplate() []importer.TemplateField {
	return []importer.TemplateField{
		{Key: "t_blank_color", Label: "Blank Color", Type: importer.FieldTypeText, Required: true},
		{Key: "t_length", Label: "Length", Type: importer.FieldTypeFeetInches, Required: true},
		{Key: "t_line_weight", Label: "Line Weight", Type: importer.FieldTypeRangeLb},
		{Key: "t_pieces", Label: "Piece Count", Type: importer.FieldTypeNumber},
		{Key: "t_primary_variant_sku", Label: "SKU", Type: importer.FieldTypeText, Required: true},
		{Key: "t_primary_variant_price", Label: "Price", Type: importer.FieldTypeCurrency},
	}
}

func TestMapAttributesFuzzyFallback(t *testing.T) {
	t.Parallel()
	result := MapAttributes(
		[]importer.TemplateField{{Key: "t_blank_color", Label: "Blank Color", Type: importer.FieldTypeText}},
		Input{Attributes: map[string][]string{"Rod Blank Color": {"Black"}}},
		nil,
	)
	assert.Equal(t, "Black", result.FieldValues["t_blank_color"])
	assert.Equal(t, "Rod Blank Color", result.MappedFrom["t_blank_color"])
	assert.Empty(t, result.Unmatched)
}

func TestMapAttributesCoreShortcuts(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Core: importer.CoreFields{SKU: "RB-86-MH", Price: "$219.99"},
	}, nil)

	assert.Equal(t, "RB-86-MH", result.FieldValues["t_primary_variant_sku"])
	assert.Equal(t, "core:sku", result.MappedFrom["t_primary_variant_sku"])
	assert.Equal(t, importer.Money{Amount: 219.99, CurrencyCode: "USD"}, result.FieldValues["t_primary_variant_price"])
	assert.Equal(t, "core:price", result.MappedFrom["t_primary_variant_price"])
}

func TestMapAttributesAliasMemoryWinsOverExactLabel(t *testing.T) {
	t.Parallel()
	fields := []importer.TemplateField{
		{Key: "t_color", Label: "Color", Type: importer.FieldTypeText},
		{Key: "t_finish", Label: "Finish", Type: importer.FieldTypeText},
	}
	aliases := map[string]string{"color": "t_finish"}
	result := MapAttributes(fields, Input{
		Attributes: map[string][]string{"Color": {"Matte Black"}},
	}, aliases)

	assert.Equal(t, "Matte Black", result.FieldValues["t_finish"])
	assert.Equal(t, "Color", result.MappedFrom["t_finish"])
	_, colorSet := result.FieldValues["t_color"]
	assert.False(t, colorSet)
}

func TestMapAttributesKeySuffixMatch(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{"Pieces": {"2"}},
	}, nil)
	assert.Equal(t, 2.0, result.FieldValues["t_pieces"])
	assert.Equal(t, "Pieces", result.MappedFrom["t_pieces"])
}

func TestMapAttributesRelaxedPass(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{"Pieces*": {"2"}},
	}, nil)
	assert.Equal(t, 2.0, result.FieldValues["t_pieces"])
}

func TestMapAttributesGlobalAlias(t *testing.T) {
	t.Parallel()
	fields := []importer.TemplateField{
		{Key: "t_tip_top", Label: "Tip Top", Type: importer.FieldTypeText},
	}
	result := MapAttributes(fields, Input{
		Attributes: map[string][]string{"Tip-Top Size": {"6"}},
	}, nil)
	assert.Equal(t, "6", result.FieldValues["t_tip_top"])
}

func TestMapAttributesTypedCast(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{
			"Length":      {`8'6"`},
			"Line Weight": {"10-20 lb"},
		},
	}, nil)
	assert.Equal(t, 102.0, result.FieldValues["t_length"])
	assert.Equal(t, importer.Range{Min: 10, Max: 20}, result.FieldValues["t_line_weight"])
}

func TestMapAttributesUnmatchedReported(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{"Warranty Program": {"Limited Lifetime"}},
	}, nil)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "Warranty Program", result.Unmatched[0].Label)
	assert.Equal(t, "Limited Lifetime", result.Unmatched[0].Sample)
}

func TestMapAttributesAxes(t *testing.T) {
	t.Parallel()
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{
			"Length": {"7'0\""},
			"Power":  {"Medium Heavy"},
			"Action": {"Fast"},
		},
	}, nil)
	assert.Equal(t, importer.Axes{O1: "7'0\"", O2: "Medium Heavy", O3: "Fast"}, result.Axes)
}

func TestMapAttributesCallerAxesTakePrecedence(t *testing.T) {
	t.Parallel()
	provided := importer.Axes{O1: "9'", O2: "Heavy", O3: "Moderate"}
	result := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{"Power": {"Light"}},
		Axes:       &provided,
	}, nil)
	assert.Equal(t, provided, result.Axes)
}

func TestMapAttributesCompletionStatus(t *testing.T) {
	t.Parallel()

	full := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{
			"Blank Color": {"Black"},
			"Length":      {"7'"},
		},
		Core: importer.CoreFields{SKU: "X-1"},
	}, nil)
	assert.Equal(t, importer.CompletionComplete, full.Status)
	assert.Empty(t, full.MissingRequired)

	partial := MapAttributes(rodTemplate(), Input{
		Attributes: map[string][]string{"Blank Color": {"Black"}},
		Core:       importer.CoreFields{SKU: "X-1"},
	}, nil)
	assert.Equal(t, importer.CompletionPartial, partial.Status)
	assert.Equal(t, []string{"t_length"}, partial.MissingRequired)

	severe := MapAttributes(rodTemplate(), Input{}, nil)
	assert.Equal(t, importer.CompletionSevere, severe.Status)
	assert.Len(t, severe.MissingRequired, 3)
}
