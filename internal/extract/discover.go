package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProductLinks discovers product detail URLs on a listing page so the
// caller can fetch each and apply a product strategy. Bounded by
// MaxFollowLinks.
type ProductLinks struct{}

// ID implements Discoverer.
func (ProductLinks) ID() string { return "list" }

var productPathHints = []string{"/product", "/products/", "/p/", "/item", "/rods/"}

// DiscoverLinks implements Discoverer.
func (ProductLinks) DiscoverLinks(html []byte, baseURL string) ([]string, []string) {
	return discover(html, baseURL, func(href string) bool {
		lower := strings.ToLower(href)
		for _, hint := range productPathHints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
		return false
	})
}

// SeriesLinks finds series pages on a brand/category page; each series page
// carries the attribute grid for its models.
type SeriesLinks struct{}

// ID implements Discoverer.
func (SeriesLinks) ID() string { return "series" }

// DiscoverLinks implements Discoverer.
func (SeriesLinks) DiscoverLinks(html []byte, baseURL string) ([]string, []string) {
	return discover(html, baseURL, func(href string) bool {
		return strings.Contains(strings.ToLower(href), "/series/")
	})
}

// CategoryLinks is the outermost frontier: category pages linking to series
// listings.
type CategoryLinks struct{}

// ID implements Discoverer.
func (CategoryLinks) ID() string { return "category" }

// DiscoverLinks implements Discoverer.
func (CategoryLinks) DiscoverLinks(html []byte, baseURL string) ([]string, []string) {
	return discover(html, baseURL, func(href string) bool {
		lower := strings.ToLower(href)
		return strings.Contains(lower, "/category/") || strings.Contains(lower, "/series/")
	})
}

func discover(html []byte, baseURL string, accept func(string) bool) ([]string, []string) {
	doc, diag := parse(html)
	if doc == nil {
		return nil, []string{diag}
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !accept(href) {
			return true
		}
		resolved := resolveURL(baseURL, href)
		if resolved == "" {
			return true
		}
		if _, dup := seen[resolved]; dup {
			return true
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
		return len(links) < MaxFollowLinks
	})

	if len(links) == 0 {
		return nil, []string{"no followable links discovered"}
	}
	return links, nil
}
