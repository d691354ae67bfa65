// Package extract turns supplier HTML into RawRecords. Strategies are pure
// functions of the page content; the caller performs all network access.
// Extraction failures produce an empty record list plus diagnostics, never
// an error.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rodforge/supplier-import/internal/importer"
)

// Strategy normalizes one page shape into RawRecords.
type Strategy interface {
	ID() string
	Extract(html []byte, baseURL string) ([]importer.RawRecord, []string)
}

// Discoverer finds the next crawl frontier on listing pages. The caller
// fetches the returned links and applies a product strategy to each.
type Discoverer interface {
	ID() string
	DiscoverLinks(html []byte, baseURL string) ([]string, []string)
}

// MaxFollowLinks bounds link-follow fan-out per listing page.
const MaxFollowLinks = 25

// Plan tells the caller how to treat a scraper id: which strategy to apply
// to the fetched page, and whether to discover and follow links first.
type Plan struct {
	Strategy Strategy
	Discover Discoverer
}

// Lookup resolves a scraper id to its plan. Unknown or empty ids fall back
// to the JSON-LD strategy.
func Lookup(scraperID string) Plan {
	switch scraperID {
	case "", "jsonld":
		return Plan{Strategy: JSONLD{}}
	case "dom":
		return Plan{Strategy: DOM{}}
	case "table":
		return Plan{Strategy: Table{}}
	case "list":
		return Plan{Strategy: JSONLD{}, Discover: ProductLinks{}}
	case "series":
		return Plan{Strategy: Table{}, Discover: SeriesLinks{}}
	case "category":
		return Plan{Strategy: Table{}, Discover: CategoryLinks{}}
	default:
		return Plan{Strategy: JSONLD{}}
	}
}

// parse wraps goquery document construction with a diagnostic instead of an
// error so strategies keep the never-throws contract.
func parse(html []byte) (*goquery.Document, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, "html parse failed: " + err.Error()
	}
	return doc, ""
}

// resolveURL makes href absolute against base; returns "" for junk links.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == "" {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

// addAttribute appends a value under label, creating the map on first use.
func addAttribute(rec *importer.RawRecord, label, value string) {
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return
	}
	if rec.Attributes == nil {
		rec.Attributes = make(map[string][]string)
	}
	rec.Attributes[label] = append(rec.Attributes[label], value)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
