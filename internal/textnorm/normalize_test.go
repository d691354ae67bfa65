package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Length", "length"},
		{"whitespace runs", "Rod   Blank\tColor", "rod blank color"},
		{"unit hint inches", "Length (in)", "length"},
		{"unit hint spelled", "Length (inches)", "length"},
		{"unit hint pounds", "Line Weight (lbs)", "line weight"},
		{"unit hint ounces", "Lure Weight (oz)", "lure weight"},
		{"unit hint metric", "Butt Diameter (mm)", "butt diameter"},
		{"hyphen separator", "Tip-Top Size", "tip top size"},
		{"underscore separator", "blank_color", "blank color"},
		{"trailing colon", "Action:", "action"},
		{"trailing dots", "Power...", "power"},
		{"entities", "Rings &amp; Guides", "rings & guides"},
		{"nbsp", "Tip&nbsp;Top", "tip top"},
		{"non unit paren kept", "Color (primary)", "color (primary)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"Tip-Top  Size (in)",
		"Rod Blank Color:",
		"Line&nbsp;Weight (lbs)",
		"Color (primary)",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestNormalizeCaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Normalize("tip top size"), Normalize("Tip-Top  Size (in)"))
}

func TestRelax(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "color", Relax("Color (primary)"))
	assert.Equal(t, "pieces", Relax("Pieces*"))
	assert.Equal(t, Relax("Guide Count"), Relax(Relax("Guide Count")))
}

func TestTokens(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"rod", "blank", "color"}, Tokens("Rod-Blank Color:"))
	assert.Nil(t, Tokens("   "))
}
