package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonldPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Vanguard Casting Rod",
  "sku": "VG-70-MH",
  "brand": {"@type": "Brand", "name": "Rodforge"},
  "image": ["https://cdn.example.com/vg1.jpg", "https://cdn.example.com/vg2.jpg"],
  "additionalProperty": [
    {"@type": "PropertyValue", "name": "Length", "value": "7'0\""},
    {"@type": "PropertyValue", "name": "Power", "value": "Medium Heavy"}
  ],
  "offers": [
    {"@type": "Offer", "sku": "VG-70-MH", "price": "129.99", "priceCurrency": "USD",
     "availability": "https://schema.org/InStock"},
    {"@type": "Offer", "sku": "VG-76-H", "price": "139.99", "priceCurrency": "USD",
     "availability": "https://schema.org/InStock"}
  ]
}
</script>
</head><body></body></html>`

func TestJSONLDExtractOfferFanOut(t *testing.T) {
	t.Parallel()
	records, diags := JSONLD{}.Extract([]byte(jsonldPage), "https://supplier.example.com/rods/vanguard")
	require.Len(t, records, 2)
	assert.Empty(t, diags)

	first := records[0]
	assert.Equal(t, "Vanguard Casting Rod", first.Core.Title)
	assert.Equal(t, "VG-70-MH", first.Core.SKU)
	assert.Equal(t, "129.99", first.Core.Price)
	assert.Equal(t, "InStock", first.Core.Availability)
	assert.Equal(t, []string{"Rodforge"}, first.Attributes["Brand"])
	assert.Equal(t, []string{`7'0"`}, first.Attributes["Length"])
	assert.Len(t, first.Images, 2)

	second := records[1]
	assert.Equal(t, "VG-76-H", second.Core.SKU)
	assert.Equal(t, "139.99", second.Core.Price)
}

func TestJSONLDExtractGraphContainer(t *testing.T) {
	t.Parallel()
	page := `<script type="application/ld+json">
	{"@graph": [
	  {"@type": "BreadcrumbList", "name": "nav"},
	  {"@type": ["Product"], "name": "Surf Rod", "sku": "SR-11"}
	]}
	</script>`
	records, _ := JSONLD{}.Extract([]byte(page), "https://supplier.example.com/p/surf")
	require.Len(t, records, 1)
	assert.Equal(t, "Surf Rod", records[0].Core.Title)
	assert.Equal(t, "SR-11", records[0].Core.SKU)
}

func TestJSONLDExtractMicrodataFallback(t *testing.T) {
	t.Parallel()
	page := `<div itemscope itemtype="https://schema.org/Product">
	  <span itemprop="name">Kayak Special</span>
	  <span itemprop="sku">KS-66</span>
	  <meta itemprop="price" content="89.00">
	</div>`
	records, diags := JSONLD{}.Extract([]byte(page), "https://supplier.example.com/p/ks66")
	require.Len(t, records, 1)
	assert.Equal(t, "Kayak Special", records[0].Core.Title)
	assert.Equal(t, "89.00", records[0].Core.Price)
	assert.Contains(t, diags[0], "microdata fallback")
}

func TestJSONLDExtractBadJSONIsDiagnosticNotError(t *testing.T) {
	t.Parallel()
	page := `<script type="application/ld+json">{not json}</script>`
	records, diags := JSONLD{}.Extract([]byte(page), "https://supplier.example.com/x")
	assert.Empty(t, records)
	require.NotEmpty(t, diags)
}

func TestDOMExtract(t *testing.T) {
	t.Parallel()
	page := `<html><body>
	  <h1>Drifter Spinning Rod</h1>
	  <div class="product-price">$74.95</div>
	  <div class="sku">SKU: DR-70-M</div>
	  <img src="/img/drifter.jpg">
	  <dl><dt>Action</dt><dd>Fast</dd><dt>Pieces</dt><dd>2</dd></dl>
	</body></html>`
	records, diags := DOM{}.Extract([]byte(page), "https://supplier.example.com/rods/drifter")
	require.Len(t, records, 1)
	assert.Empty(t, diags)

	rec := records[0]
	assert.Equal(t, "Drifter Spinning Rod", rec.Core.Title)
	assert.Equal(t, "$74.95", rec.Core.Price)
	assert.Equal(t, "DR-70-M", rec.Core.SKU)
	assert.Equal(t, []string{"https://supplier.example.com/img/drifter.jpg"}, rec.Images)
	assert.Equal(t, []string{"Fast"}, rec.Attributes["Action"])
}

func TestDOMExtractEmptyPage(t *testing.T) {
	t.Parallel()
	records, diags := DOM{}.Extract([]byte("<html><body><p>nothing here</p></body></html>"), "")
	assert.Empty(t, records)
	require.NotEmpty(t, diags)
}

const gridPage = `<table>
  <tr><th>Code</th><th>Model</th><th>Specs</th><th>Price</th></tr>
  <tr>
    <td>CB70MH</td>
    <td>Crossbreed 7'0" MH</td>
    <td><ul>
      <li>Length: 7'0"</li>
      <li>Power: Medium Heavy</li>
      <li>Action: Fast</li>
      <li>Line Weight: 10-20 lb</li>
    </ul></td>
    <td class="availability">In Stock</td>
    <td><button data-product-id="998877">Add to cart</button></td>
    <td class="price">149.99 USD</td>
  </tr>
  <tr>
    <td>CB76H</td>
    <td>Crossbreed 7'6" H</td>
    <td><ul><li>Length: 7'6"</li><li>Power: Heavy</li></ul></td>
    <td class="availability">Backordered</td>
    <td><button data-product-id="998878">Add to cart</button></td>
    <td class="price">159.99 USD</td>
  </tr>
</table>`

func TestTableExtract(t *testing.T) {
	t.Parallel()
	records, diags := Table{}.Extract([]byte(gridPage), "https://supplier.example.com/series/crossbreed")
	require.Len(t, records, 2)
	assert.Empty(t, diags)

	rec := records[0]
	assert.Equal(t, "CB70MH", rec.Core.SKU)
	assert.Equal(t, `Crossbreed 7'0" MH`, rec.Core.Title)
	assert.Equal(t, "149.99", rec.Core.Price, "currency suffix must be stripped")
	assert.Equal(t, "In Stock", rec.Core.Availability)
	assert.Equal(t, []string{"998877"}, rec.Attributes["External ID"])
	assert.Equal(t, []string{"10-20 lb"}, rec.Attributes["Line Weight"])

	assert.Equal(t, "Backordered", records[1].Core.Availability)
}

func TestTableExtractNoRows(t *testing.T) {
	t.Parallel()
	records, diags := Table{}.Extract([]byte("<p>no table</p>"), "")
	assert.Empty(t, records)
	require.NotEmpty(t, diags)
}

func TestProductLinksDiscover(t *testing.T) {
	t.Parallel()
	page := `<a href="/products/alpha">Alpha</a>
	<a href="/products/alpha">Alpha dup</a>
	<a href="/about">About</a>
	<a href="https://other.example.com/p/beta">Beta</a>`
	links, diags := ProductLinks{}.DiscoverLinks([]byte(page), "https://supplier.example.com/catalog")
	assert.Empty(t, diags)
	assert.Equal(t, []string{
		"https://supplier.example.com/products/alpha",
		"https://other.example.com/p/beta",
	}, links)
}

func TestProductLinksBounded(t *testing.T) {
	t.Parallel()
	var page string
	for i := 0; i < 2*MaxFollowLinks; i++ {
		page += `<a href="/products/rod-` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `">x</a>`
	}
	links, _ := ProductLinks{}.DiscoverLinks([]byte(page), "https://supplier.example.com/")
	assert.LessOrEqual(t, len(links), MaxFollowLinks)
}

func TestSeriesLinksDiscover(t *testing.T) {
	t.Parallel()
	page := `<a href="/series/crossbreed">Crossbreed</a><a href="/news">News</a>`
	links, _ := SeriesLinks{}.DiscoverLinks([]byte(page), "https://supplier.example.com/")
	assert.Equal(t, []string{"https://supplier.example.com/series/crossbreed"}, links)
}

func TestLookup(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "jsonld", Lookup("").Strategy.ID())
	assert.Equal(t, "dom", Lookup("dom").Strategy.ID())
	assert.Equal(t, "table", Lookup("table").Strategy.ID())
	require.NotNil(t, Lookup("list").Discover)
	assert.Equal(t, "list", Lookup("list").Discover.ID())
	assert.Equal(t, "jsonld", Lookup("unknown-id").Strategy.ID())
}
