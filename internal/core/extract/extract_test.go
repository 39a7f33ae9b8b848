package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navigator/internal/core/nav"
	"navigator/internal/platform/eino"
)

func snapshot(t *testing.T, html string) *nav.PageSnapshot {
	t.Helper()
	snap, err := nav.NewSnapshot("https://shop.example/p/widget-4000", "", html)
	require.NoError(t, err)
	return snap
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in       string
		fallback string
		amount   float64
		currency string
	}{
		{"$19.99", "", 19.99, "USD"},
		{"₹49,990", "", 49990, "INR"},
		{"Rs. 1,49,990.00", "", 149990, "INR"},
		{"1.299,99 €", "", 1299.99, "EUR"},
		{"EUR 12", "", 12, "EUR"},
		{"Now only US$1,299.50!", "", 1299.5, "USD"},
		{"49990", "INR", 49990, "INR"},
	}
	for _, c := range cases {
		m, ok := ParseMoney(c.in, c.fallback)
		require.True(t, ok, c.in)
		assert.InDelta(t, c.amount, m.Amount, 0.001, c.in)
		assert.Equal(t, c.currency, m.Currency, c.in)
	}

	_, ok := ParseMoney("49990", "")
	assert.False(t, ok, "bare numbers need a fallback currency")
	_, ok = ParseMoney("free shipping on offers", "")
	assert.False(t, ok)
}

// A structured price of "$19.99" yields a high-confidence USD record.
func TestStructuredMicrodataPrice(t *testing.T) {
	snap := snapshot(t, `<html><body>
<div itemscope itemtype="https://schema.org/Product">
  <h1 itemprop="name">Widget 4000</h1>
  <span itemprop="price">$19.99</span>
  <link itemprop="availability" href="https://schema.org/InStock">
</div></body></html>`)

	recs := New().Extract(snap, nav.Goal{Query: "Widget 4000"})
	require.Len(t, recs, 1)
	assert.Equal(t, nav.ExtractedRecord{
		Name:         "Widget 4000",
		Price:        19.99,
		Currency:     "USD",
		Availability: nav.AvailabilityInStock,
		SourceURL:    "https://shop.example/p/widget-4000",
		Confidence:   nav.ConfidenceHigh,
		Strategy:     "structured",
	}, recs[0])
}

func TestStructuredJSONLDPicksLowestOffer(t *testing.T) {
	snap := snapshot(t, `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Widget 4000",
 "offers":[{"@type":"Offer","price":"24.50","priceCurrency":"USD","availability":"http://schema.org/OutOfStock"},
           {"@type":"Offer","price":21,"priceCurrency":"USD","availability":"http://schema.org/InStock"}]}
</script></head><body><h1>Other heading</h1></body></html>`)

	recs := New().Extract(snap, nav.Goal{})
	require.Len(t, recs, 1)
	assert.Equal(t, "Widget 4000", recs[0].Name)
	assert.Equal(t, 21.0, recs[0].Price)
	assert.Equal(t, nav.AvailabilityInStock, recs[0].Availability)
}

func TestLabeledSkipsStalePrices(t *testing.T) {
	snap := snapshot(t, `<html><body><h1>Widget 4000</h1>
<div class="price-box"><span class="price-old">$29.99</span><span class="price-now">$19.99</span></div>
<p>In stock</p></body></html>`)

	recs := New().Extract(snap, nav.Goal{})
	require.Len(t, recs, 1)
	assert.Equal(t, 19.99, recs[0].Price)
	assert.Equal(t, "labeled", recs[0].Strategy)
	assert.Equal(t, nav.ConfidenceMedium, recs[0].Confidence)
	assert.Equal(t, nav.AvailabilityInStock, recs[0].Availability)

	for _, class := range []string{"text-xl font-bold price", "price placeholder-shown", "listing-price"} {
		snap := snapshot(t, `<html><body><h1>Widget 4000</h1><span class="`+class+`">$19.99</span></body></html>`)
		recs := Labeled{}.Extract(snap, nav.Goal{})
		require.Len(t, recs, 1, class)
		assert.Equal(t, 19.99, recs[0].Price, class)
	}
}

func TestPositionalFallback(t *testing.T) {
	snap := snapshot(t, `<html><body><h1>Widget 4000</h1><p>Rated 4.5 by 120 buyers</p><p>Only ₹1,499 today</p></body></html>`)

	recs := New().Extract(snap, nav.Goal{})
	require.Len(t, recs, 1)
	assert.Equal(t, 1499.0, recs[0].Price)
	assert.Equal(t, "INR", recs[0].Currency)
	assert.Equal(t, "positional", recs[0].Strategy)
}

func TestEmptyWhenNothingPlausible(t *testing.T) {
	snap := snapshot(t, `<html><body><h1>Access denied</h1><p>Please try again later.</p></body></html>`)
	assert.Nil(t, New().Extract(snap, nav.Goal{}))
	assert.Nil(t, New().Extract(nil, nav.Goal{}))
}

func TestExtractIsIdempotent(t *testing.T) {
	pages := []string{
		`<html><body><span itemprop="price" content="19.99">$19.99</span><h1>W</h1></body></html>`,
		`<html><body><h1>W</h1><div class="price">€ 12,50</div></body></html>`,
		`<html><body><h1>W</h1><p>now $5</p></body></html>`,
	}
	ex := New()
	for _, html := range pages {
		snap := snapshot(t, html)
		first := ex.Extract(snap, nav.Goal{})
		second := ex.Extract(snap, nav.Goal{})
		require.NotEmpty(t, first)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("extract not idempotent (-first +second):\n%s", diff)
		}
	}
}

type fakeProductModel struct {
	product *eino.Product
	err     error
}

func (f fakeProductModel) ExtractProduct(context.Context, eino.PageRequest) (*eino.Product, error) {
	return f.product, f.err
}

func TestLLMStrategyRunsLast(t *testing.T) {
	snap := snapshot(t, `<html><body><h1>Widget 4000</h1><p>Call us for pricing</p></body></html>`)
	llm := LLM{Model: fakeProductModel{product: &eino.Product{Price: 18, Currency: "USD", Availability: "InStock"}}}

	recs := New(append(Default(), llm)...).Extract(snap, nav.Goal{})
	require.Len(t, recs, 1)
	assert.Equal(t, "llm", recs[0].Strategy)
	assert.Equal(t, "Widget 4000", recs[0].Name)

	failing := LLM{Model: fakeProductModel{err: errors.New("quota")}}
	assert.Nil(t, New(failing).Extract(snap, nav.Goal{}))
	assert.Equal(t, []string{"structured", "labeled", "positional", "llm"}, New(append(Default(), llm)...).Names())
}
