package match

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rodforge/supplier-import/internal/importer"
)

// CastFailedTag marks a value that could not be coerced to the field type.
// The raw string is kept; coercion failures are never errors.
const CastFailedTag = "cast-failed"

var (
	feetInchesPattern = regexp.MustCompile(
		`^\s*(\d+(?:\.\d+)?)\s*(?:'|ft\.?|feet)\s*(?:(\d+(?:\.\d+)?)\s*(?:"|''|in\.?|inches)?)?\s*$`)
	bareNumberPattern = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*$`)
	rangePattern      = regexp.MustCompile(
		`(?i)^\s*([\d\s./]+?)\s*-\s*([\d\s./]+?)\s*(?:lbs?|oz)?\.?\s*$`)
	currencyPattern = regexp.MustCompile(`^\s*(?:\$|([A-Za-z]{3})\s*)?([\d,]+(?:\.\d+)?)\s*$`)
	fractionPattern = regexp.MustCompile(`^(?:(\d+)\s+)?(\d+)/(\d+)$`)
)

// Cast coerces a raw value to the field's declared type. On failure the raw
// string is returned unchanged and CastFailedTag is appended to why.
func Cast(fieldType importer.FieldType, raw string, why []string) (any, []string) {
	switch fieldType {
	case importer.FieldTypeFeetInches:
		if inches, ok := castFeetInches(raw); ok {
			return inches, why
		}
	case importer.FieldTypeRangeLb, importer.FieldTypeRangeOz:
		if r, ok := castRange(raw); ok {
			return r, why
		}
	case importer.FieldTypeCurrency:
		if m, ok := castCurrency(raw); ok {
			return m, why
		}
	case importer.FieldTypeNumber:
		if n, ok := castNumber(raw); ok {
			return n, why
		}
	case importer.FieldTypeText:
		return raw, why
	default:
		return raw, why
	}
	return raw, append(why, CastFailedTag)
}

// castFeetInches converts lengths like 8'6", 8 ft 6 in, 8.5' or a bare
// number (assumed feet) to total inches.
func castFeetInches(raw string) (float64, bool) {
	if m := feetInchesPattern.FindStringSubmatch(raw); m != nil {
		feet, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		inches := 0.0
		if m[2] != "" {
			inches, err = strconv.ParseFloat(m[2], 64)
			if err != nil {
				return 0, false
			}
		}
		return feet*12 + inches, true
	}
	if bareNumberPattern.MatchString(raw) {
		feet, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, false
		}
		return feet * 12, true
	}
	return 0, false
}

// castRange parses "<a>-<b> lb|oz" with fractional bounds like 3/4 or 1 1/2.
func castRange(raw string) (importer.Range, bool) {
	m := rangePattern.FindStringSubmatch(raw)
	if m == nil {
		return importer.Range{}, false
	}
	minVal, okMin := parseFractional(m[1])
	maxVal, okMax := parseFractional(m[2])
	if !okMin || !okMax {
		return importer.Range{}, false
	}
	return importer.Range{Min: minVal, Max: maxVal}, true
}

func parseFractional(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if m := fractionPattern.FindStringSubmatch(s); m != nil {
		whole := 0.0
		if m[1] != "" {
			w, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, false
			}
			whole = w
		}
		num, errN := strconv.ParseFloat(m[2], 64)
		den, errD := strconv.ParseFloat(m[3], 64)
		if errN != nil || errD != nil || den == 0 {
			return 0, false
		}
		return whole + num/den, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// castCurrency accepts "$19.99", "USD 19.99" or a bare amount (USD assumed).
func castCurrency(raw string) (importer.Money, bool) {
	m := currencyPattern.FindStringSubmatch(raw)
	if m == nil {
		return importer.Money{}, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return importer.Money{}, false
	}
	code := strings.ToUpper(m[1])
	if code == "" {
		code = "USD"
	}
	return importer.Money{Amount: amount, CurrencyCode: code}, true
}

func castNumber(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
