package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rodforge/supplier-import/internal/importer"
)

// DOM is the last-resort strategy for pages without structured data: h1
// title, price/sku class-name patterns, and every image on the page.
type DOM struct{}

// ID implements Strategy.
func (DOM) ID() string { return "dom" }

var (
	priceSelectors = []string{
		`[itemprop="price"]`,
		".price",
		".product-price",
		`[class*="price"]`,
	}
	skuSelectors = []string{
		`[itemprop="sku"]`,
		".sku",
		".product-sku",
		`[class*="sku"]`,
	}
	priceTextPattern = regexp.MustCompile(`[$€£]?\s*[\d,]+(?:\.\d{1,2})?`)
	skuPrefixPattern = regexp.MustCompile(`(?i)^(?:sku|item|model)\s*[#:]?\s*`)
)

// Extract implements Strategy.
func (DOM) Extract(html []byte, baseURL string) ([]importer.RawRecord, []string) {
	doc, diag := parse(html)
	if doc == nil {
		return nil, []string{diag}
	}

	rec := importer.RawRecord{SourceURL: baseURL}
	rec.Core.Title = cleanText(doc.Find("h1").First().Text())
	rec.Core.Price = firstSelectorMatch(doc, priceSelectors, priceText)
	rec.Core.SKU = firstSelectorMatch(doc, skuSelectors, skuText)

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			src, _ = sel.Attr("data-src")
		}
		if resolved := resolveURL(baseURL, src); resolved != "" {
			rec.Images = append(rec.Images, resolved)
		}
	})

	// Definition lists and spec tables are cheap wins even on unstructured
	// pages.
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.Find("dt")
		defs := dl.Find("dd")
		terms.Each(func(i int, dt *goquery.Selection) {
			if i < defs.Length() {
				addAttribute(&rec, cleanText(dt.Text()), cleanText(defs.Eq(i).Text()))
			}
		})
	})

	if rec.Core.Title == "" && rec.Core.SKU == "" && rec.Core.Price == "" {
		return nil, []string{"dom heuristics found no title, sku or price"}
	}
	return []importer.RawRecord{rec}, nil
}

func firstSelectorMatch(doc *goquery.Document, selectors []string, clean func(string) string) string {
	for _, selector := range selectors {
		text := cleanText(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		if value := clean(text); value != "" {
			return value
		}
	}
	return ""
}

func priceText(text string) string {
	return strings.TrimSpace(priceTextPattern.FindString(text))
}

func skuText(text string) string {
	return strings.TrimSpace(skuPrefixPattern.ReplaceAllString(text, ""))
}
