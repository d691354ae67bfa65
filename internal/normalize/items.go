// Package normalize converts raw extracted records into canonical items and
// assigns batch dedupe keys.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rodforge/supplier-import/internal/importer"
)

// Conventional attribute labels consulted when no override is configured.
const (
	defaultTitleLabel = "Title"
	defaultSKULabel   = "SKU"
	defaultPriceLabel = "Price"
)

var defaultVendorLabels = []string{"Brand", "Vendor", "Manufacturer"}

// Warning markers attached to items that are still created.
const (
	WarningMissingTitle = "missing-title"
	WarningMissingPrice = "missing-price"
)

// Options overrides the conventional source labels per run. A fixed Vendor
// wins over any vendor attribute.
type Options struct {
	TitleLabel  string
	SKULabel    string
	VendorLabel string
	PriceLabel  string
	Vendor      string
}

var priceJunkPattern = regexp.MustCompile(`[^0-9+\-.]`)

// Items converts raw records into normalized items. Records are never
// dropped here; gaps become warnings for human follow-up.
func Items(records []importer.RawRecord, opts Options) []importer.NormalizedItem {
	items := make([]importer.NormalizedItem, 0, len(records))
	for _, rec := range records {
		items = append(items, one(rec, opts))
	}
	return items
}

func one(rec importer.RawRecord, opts Options) importer.NormalizedItem {
	item := importer.NormalizedItem{
		Title:  firstNonEmpty(rec.Core.Title, rec.Attribute(labelOr(opts.TitleLabel, defaultTitleLabel))),
		SKU:    firstNonEmpty(rec.Core.SKU, rec.Attribute(labelOr(opts.SKULabel, defaultSKULabel))),
		Vendor: resolveVendor(rec, opts),
		Images: append([]string(nil), rec.Images...),
		Raw:    rec,
	}

	if item.Title == "" {
		item.Warnings = append(item.Warnings, WarningMissingTitle)
	}

	rawPrice := firstNonEmpty(rec.Core.Price, rec.Attribute(labelOr(opts.PriceLabel, defaultPriceLabel)))
	if price, ok := ParsePrice(rawPrice); ok {
		item.Price = &price
	} else {
		item.Warnings = append(item.Warnings, WarningMissingPrice)
	}

	item.DedupeKey = Key(item)
	return item
}

func resolveVendor(rec importer.RawRecord, opts Options) string {
	if opts.Vendor != "" {
		return opts.Vendor
	}
	if opts.VendorLabel != "" {
		return rec.Attribute(opts.VendorLabel)
	}
	for _, label := range defaultVendorLabels {
		if v := rec.Attribute(label); v != "" {
			return v
		}
	}
	return ""
}

// ParsePrice strips everything but digits, sign and decimal point before
// parsing. Returns false for empty or unparseable input.
func ParsePrice(raw string) (float64, bool) {
	cleaned := priceJunkPattern.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Key derives the batch dedupe key: lowercased vendor::sku when both are
// present, else a rolling hash of the title.
func Key(item importer.NormalizedItem) string {
	if item.Vendor != "" && item.SKU != "" {
		return strings.ToLower(item.Vendor + "::" + item.SKU)
	}
	return fmt.Sprintf("title:%08x", rollingHash(strings.ToLower(item.Title)))
}

// rollingHash is a deterministic 32-bit multiplicative hash.
func rollingHash(s string) uint32 {
	var h uint32
	for _, c := range []byte(s) {
		h = h*31 + uint32(c)
	}
	return h
}

func labelOr(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
