package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rodforge/supplier-import/internal/importer"
)

// JSONLD extracts schema.org Product nodes from ld+json script blocks. A
// product with multiple offers fans out to one record per offer. When no
// product nodes exist it falls back to a microdata (itemprop) scan.
type JSONLD struct{}

// ID implements Strategy.
func (JSONLD) ID() string { return "jsonld" }

// Extract implements Strategy.
func (JSONLD) Extract(html []byte, baseURL string) ([]importer.RawRecord, []string) {
	doc, diag := parse(html)
	if doc == nil {
		return nil, []string{diag}
	}

	var records []importer.RawRecord
	var diags []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			diags = append(diags, fmt.Sprintf("ld+json block %d: %v", i, err))
			return
		}
		for _, node := range flattenNodes(payload) {
			if !isProductNode(node) {
				continue
			}
			records = append(records, productRecords(node, baseURL)...)
		}
	})

	if len(records) == 0 {
		micro := microdataRecords(doc, baseURL)
		if len(micro) > 0 {
			diags = append(diags, "no ld+json product nodes; used microdata fallback")
			return micro, diags
		}
		diags = append(diags, "no product structured data found")
	}
	return records, diags
}

// flattenNodes unwraps arrays and @graph containers into a flat node list.
func flattenNodes(payload any) []map[string]any {
	var nodes []map[string]any
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			nodes = append(nodes, flattenNodes(item)...)
		}
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				nodes = append(nodes, flattenNodes(item)...)
			}
			return nodes
		}
		nodes = append(nodes, v)
	}
	return nodes
}

// isProductNode accepts @type Product (string or list) and, failing that,
// nodes that look like products because they carry a sku or a name.
func isProductNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		if strings.EqualFold(t, "Product") {
			return true
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	if _, ok := node["sku"]; ok {
		return true
	}
	_, ok := node["name"]
	return ok && node["@type"] == nil
}

// productRecords builds one record per offer (or a single record when the
// node has no offers).
func productRecords(node map[string]any, baseURL string) []importer.RawRecord {
	base := importer.RawRecord{SourceURL: baseURL}
	base.Core.Title = stringValue(node["name"])
	base.Core.SKU = stringValue(node["sku"])
	base.Images = imageList(node["image"])

	if brand := brandName(node["brand"]); brand != "" {
		addAttribute(&base, "Brand", brand)
	}
	if desc := stringValue(node["description"]); desc != "" {
		addAttribute(&base, "Description", desc)
	}
	for _, prop := range propertyList(node["additionalProperty"]) {
		addAttribute(&base, stringValue(prop["name"]), stringValue(prop["value"]))
	}

	offers := offerList(node["offers"])
	if len(offers) == 0 {
		return []importer.RawRecord{base}
	}
	records := make([]importer.RawRecord, 0, len(offers))
	for _, offer := range offers {
		rec := cloneRecord(base)
		if sku := stringValue(offer["sku"]); sku != "" {
			rec.Core.SKU = sku
		}
		if price := stringValue(offer["price"]); price != "" {
			rec.Core.Price = price
			if cur := stringValue(offer["priceCurrency"]); cur != "" {
				addAttribute(&rec, "Currency", cur)
			}
		}
		if avail := stringValue(offer["availability"]); avail != "" {
			rec.Core.Availability = trimSchemaPrefix(avail)
		}
		records = append(records, rec)
	}
	return records
}

// microdataRecords scans itemprop attributes when ld+json yields nothing.
func microdataRecords(doc *goquery.Document, baseURL string) []importer.RawRecord {
	rec := importer.RawRecord{SourceURL: baseURL}
	doc.Find("[itemprop]").Each(func(_ int, sel *goquery.Selection) {
		prop, _ := sel.Attr("itemprop")
		value, _ := sel.Attr("content")
		if value == "" {
			value = cleanText(sel.Text())
		}
		switch strings.ToLower(prop) {
		case "name":
			if rec.Core.Title == "" {
				rec.Core.Title = value
			}
		case "sku":
			if rec.Core.SKU == "" {
				rec.Core.SKU = value
			}
		case "price":
			if rec.Core.Price == "" {
				rec.Core.Price = value
			}
		case "availability":
			if rec.Core.Availability == "" {
				rec.Core.Availability = trimSchemaPrefix(value)
			}
		case "image":
			if src, ok := sel.Attr("src"); ok {
				value = src
			}
			if resolved := resolveURL(baseURL, value); resolved != "" {
				rec.Images = append(rec.Images, resolved)
			}
		case "brand":
			addAttribute(&rec, "Brand", value)
		}
	})
	if rec.Core.Title == "" && rec.Core.SKU == "" {
		return nil
	}
	return []importer.RawRecord{rec}
}

func cloneRecord(rec importer.RawRecord) importer.RawRecord {
	out := rec
	out.Images = append([]string(nil), rec.Images...)
	if rec.Attributes != nil {
		out.Attributes = make(map[string][]string, len(rec.Attributes))
		for k, v := range rec.Attributes {
			out.Attributes[k] = append([]string(nil), v...)
		}
	}
	return out
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return trimFloat(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func brandName(v any) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		return stringValue(b["name"])
	default:
		return ""
	}
}

func imageList(v any) []string {
	switch img := v.(type) {
	case string:
		return []string{img}
	case []any:
		var out []string
		for _, item := range img {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func propertyList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func offerList(v any) []map[string]any {
	switch offers := v.(type) {
	case map[string]any:
		return []map[string]any{offers}
	case []any:
		var out []map[string]any
		for _, item := range offers {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func trimSchemaPrefix(s string) string {
	s = strings.TrimPrefix(s, "https://schema.org/")
	s = strings.TrimPrefix(s, "http://schema.org/")
	return s
}
