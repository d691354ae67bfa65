package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rodforge/supplier-import/internal/importer"
)

// Table targets the attribute-grid layout some suppliers use for whole rod
// series: one row per model with a code cell, a model cell, an li-list of
// "Label: value" pairs, availability text, an add-to-cart data block and a
// price cell. The richest structured source when present.
type Table struct{}

// ID implements Strategy.
func (Table) ID() string { return "table" }

var (
	currencySuffixPattern = regexp.MustCompile(`(?i)\s*(?:USD|CAD|EUR|GBP)\s*$`)
	pricePattern          = regexp.MustCompile(`[\d,]+(?:\.\d{1,2})?`)
)

// Extract implements Strategy.
func (Table) Extract(html []byte, baseURL string) ([]importer.RawRecord, []string) {
	doc, diag := parse(html)
	if doc == nil {
		return nil, []string{diag}
	}

	var records []importer.RawRecord
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		if rec, ok := rowRecord(row, baseURL); ok {
			records = append(records, rec)
		}
	})
	if len(records) == 0 {
		return nil, []string{"no attribute-grid rows found"}
	}
	return records, nil
}

// rowRecord reads one grid row. Rows without a code cell and an info list
// are headers or filler and are skipped.
func rowRecord(row *goquery.Selection, baseURL string) (importer.RawRecord, bool) {
	cells := row.Find("td")
	info := row.Find("li")
	if cells.Length() < 3 || info.Length() == 0 {
		return importer.RawRecord{}, false
	}

	rec := importer.RawRecord{SourceURL: baseURL}
	rec.Core.SKU = cleanText(cells.Eq(0).Text())
	rec.Core.Title = cleanText(cells.Eq(1).Text())
	if rec.Core.SKU == "" || rec.Core.Title == "" {
		return importer.RawRecord{}, false
	}

	info.Each(func(_ int, li *goquery.Selection) {
		label, value, ok := strings.Cut(li.Text(), ":")
		if !ok {
			return
		}
		addAttribute(&rec, cleanText(label), cleanText(value))
	})

	if avail := row.Find(".availability, .stock").First(); avail.Length() > 0 {
		rec.Core.Availability = cleanText(avail.Text())
	}
	if id := cartProductID(row); id != "" {
		addAttribute(&rec, "External ID", id)
	}
	if price := rowPrice(row, cells); price != "" {
		rec.Core.Price = price
	}
	return rec, true
}

// cartProductID digs the platform product id out of the add-to-cart block.
func cartProductID(row *goquery.Selection) string {
	if id, ok := row.Find("[data-product-id]").First().Attr("data-product-id"); ok {
		return strings.TrimSpace(id)
	}
	if id, ok := row.Find(`input[name="product_id"]`).First().Attr("value"); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

// rowPrice prefers an explicit price cell and falls back to the last cell
// that looks like a price; currency suffixes are stripped.
func rowPrice(row *goquery.Selection, cells *goquery.Selection) string {
	text := cleanText(row.Find(".price").First().Text())
	if text == "" {
		for i := cells.Length() - 1; i >= 0; i-- {
			candidate := cleanText(cells.Eq(i).Text())
			if pricePattern.MatchString(candidate) && strings.ContainsAny(candidate, "$.") {
				text = candidate
				break
			}
		}
	}
	if text == "" {
		return ""
	}
	text = currencySuffixPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
