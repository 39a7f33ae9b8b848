package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"navigator/internal/core/nav"
)

// Structured reads schema.org data: JSON-LD Product offers, microdata and
// product price meta tags.
type Structured struct{}

func (Structured) Name() string { return "structured" }

func (Structured) Matches(snap *nav.PageSnapshot) bool {
	if snap.Has(`[itemprop="price"]`) {
		return true
	}
	if snap.Meta("product:price:amount") != "" || snap.Meta("og:price:amount") != "" {
		return true
	}
	for _, obj := range snap.JSONLD() {
		if isProduct(obj) {
			return true
		}
	}
	return false
}

func (s Structured) Extract(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord {
	if recs := s.fromJSONLD(snap, goal); len(recs) > 0 {
		return recs
	}
	if rec, ok := s.fromMicrodata(snap, goal); ok {
		return []nav.ExtractedRecord{rec}
	}
	if rec, ok := s.fromMeta(snap, goal); ok {
		return []nav.ExtractedRecord{rec}
	}
	return nil
}

func (s Structured) fromJSONLD(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord {
	var out []nav.ExtractedRecord
	for _, obj := range snap.JSONLD() {
		if !isProduct(obj) {
			continue
		}
		name := str(obj["name"])
		if name == "" {
			name = productName(snap)
		}
		var best *nav.ExtractedRecord
		for _, offer := range offers(obj["offers"]) {
			rec, ok := s.offer(offer, goal)
			if !ok {
				continue
			}
			if best == nil || rec.Price < best.Price {
				rec := rec
				best = &rec
			}
		}
		if best == nil {
			continue
		}
		best.Name = name
		best.SourceURL = snap.URL
		out = append(out, *best)
	}
	return out
}

func (Structured) offer(offer map[string]any, goal nav.Goal) (nav.ExtractedRecord, bool) {
	raw := str(offer["price"])
	if raw == "" {
		raw = str(offer["lowPrice"])
	}
	declared := strings.ToUpper(str(offer["priceCurrency"]))
	if spec, ok := offer["priceSpecification"].(map[string]any); ok && raw == "" {
		raw = str(spec["price"])
		if declared == "" {
			declared = strings.ToUpper(str(spec["priceCurrency"]))
		}
	}
	fallback := declared
	if fallback == "" {
		fallback = goal.Constraints.Currency
	}
	m, ok := ParseMoney(raw, fallback)
	if !ok {
		return nav.ExtractedRecord{}, false
	}
	if nav.KnownCurrency(declared) {
		m.Currency = declared
	}
	rec := nav.ExtractedRecord{
		Price:        m.Amount,
		Currency:     m.Currency,
		Availability: normalizeAvailability(str(offer["availability"])),
		Confidence:   nav.ConfidenceHigh,
		Strategy:     "structured",
	}
	return rec, rec.Plausible()
}

func (Structured) fromMicrodata(snap *nav.PageSnapshot, goal nav.Goal) (nav.ExtractedRecord, bool) {
	priceEl := snap.Find(`[itemprop="price"]`).First()
	if priceEl.Length() == 0 {
		return nav.ExtractedRecord{}, false
	}
	currency := strings.ToUpper(attrOrText(snap.Find(`[itemprop="priceCurrency"]`).First()))
	raw := attrOrText(priceEl)
	// Visible text first so "$19.99" yields its symbol when content is a bare number.
	m, ok := ParseMoney(text(priceEl), currency)
	if !ok {
		if currency == "" {
			currency = goal.Constraints.Currency
		}
		if m, ok = ParseMoney(raw, currency); !ok {
			return nav.ExtractedRecord{}, false
		}
	}
	if nav.KnownCurrency(currency) {
		m.Currency = currency
	}
	name := text(snap.Find(`[itemtype*="Product"] [itemprop="name"]`).First())
	if name == "" {
		name = productName(snap)
	}
	avail := normalizeAvailability(attrOrText(snap.Find(`[itemprop="availability"]`).First()))
	if avail == "" {
		avail = pageAvailability(snap)
	}
	rec := nav.ExtractedRecord{
		Name:         name,
		Price:        m.Amount,
		Currency:     m.Currency,
		Availability: avail,
		SourceURL:    snap.URL,
		Confidence:   nav.ConfidenceHigh,
		Strategy:     "structured",
	}
	return rec, rec.Plausible()
}

func (Structured) fromMeta(snap *nav.PageSnapshot, goal nav.Goal) (nav.ExtractedRecord, bool) {
	raw := snap.Meta("product:price:amount")
	currency := snap.Meta("product:price:currency")
	if raw == "" {
		raw = snap.Meta("og:price:amount")
		currency = snap.Meta("og:price:currency")
	}
	if currency == "" {
		currency = goal.Constraints.Currency
	}
	m, ok := ParseMoney(raw, currency)
	if !ok {
		return nav.ExtractedRecord{}, false
	}
	if nav.KnownCurrency(currency) {
		m.Currency = strings.ToUpper(currency)
	}
	rec := nav.ExtractedRecord{
		Name:         productName(snap),
		Price:        m.Amount,
		Currency:     m.Currency,
		Availability: pageAvailability(snap),
		SourceURL:    snap.URL,
		Confidence:   nav.ConfidenceHigh,
		Strategy:     "structured",
	}
	return rec, rec.Plausible()
}

// Labeled looks for short elements whose class, id, test id or aria label
// mentions a price. Struck-through and list prices are skipped.
type Labeled struct {
	// Selector overrides the default candidate query.
	Selector string
}

const labeledSelector = `[class*="price"], [id*="price"], [aria-label*="price"], [aria-label*="Price"], [data-testid*="price"]`

var staleMarkers = map[string]bool{
	"old": true, "strike": true, "strikethrough": true, "mrp": true, "was": true,
	"list": true, "original": true, "compare": true, "save": true, "discount": true,
}

func (Labeled) Name() string { return "labeled" }

func (l Labeled) selector() string {
	if l.Selector != "" {
		return l.Selector
	}
	return labeledSelector
}

func (l Labeled) Matches(snap *nav.PageSnapshot) bool { return snap.Has(l.selector()) }

func (l Labeled) Extract(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord {
	var rec nav.ExtractedRecord
	found := false
	snap.Find(l.selector()).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		// Wrappers like .price-box hold both the old and the current price.
		if stale(el) || el.Find(l.selector()).Length() > 0 {
			return true
		}
		t := text(el)
		if t == "" || len(t) > 40 {
			return true
		}
		m, ok := ParseMoney(t, goal.Constraints.Currency)
		if !ok {
			return true
		}
		rec = nav.ExtractedRecord{
			Name:         productName(snap),
			Price:        m.Amount,
			Currency:     m.Currency,
			Availability: pageAvailability(snap),
			SourceURL:    snap.URL,
			Confidence:   nav.ConfidenceMedium,
			Strategy:     "labeled",
		}
		found = rec.Plausible()
		return !found
	})
	if !found {
		return nil
	}
	return []nav.ExtractedRecord{rec}
}

func stale(el *goquery.Selection) bool {
	switch goquery.NodeName(el) {
	case "s", "del", "strike":
		return true
	}
	if el.Closest("s, del, strike").Length() > 0 {
		return true
	}
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	// Whole tokens only: "font-bold" and "listing" are not markers.
	tokens := strings.FieldsFunc(strings.ToLower(class+" "+id), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t' || r == '\n'
	})
	for _, tok := range tokens {
		if staleMarkers[tok] {
			return true
		}
	}
	return false
}

// Positional takes the first amount with an explicit currency marker in the
// visible text. Last resort among the deterministic strategies.
type Positional struct{}

func (Positional) Name() string { return "positional" }

func (Positional) Matches(snap *nav.PageSnapshot) bool { return len(snap.Text()) > 0 }

func (Positional) Extract(snap *nav.PageSnapshot, _ nav.Goal) []nav.ExtractedRecord {
	for _, line := range snap.Text() {
		m, ok := ParseMoney(line, "")
		if !ok || m.Amount <= 0 {
			continue
		}
		rec := nav.ExtractedRecord{
			Name:         productName(snap),
			Price:        m.Amount,
			Currency:     m.Currency,
			Availability: pageAvailability(snap),
			SourceURL:    snap.URL,
			Confidence:   nav.ConfidenceLow,
			Strategy:     "positional",
		}
		if rec.Plausible() {
			return []nav.ExtractedRecord{rec}
		}
	}
	return nil
}

func isProduct(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return strings.EqualFold(t, "Product") || strings.EqualFold(t, "ProductGroup")
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func offers(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if inner, ok := t["offers"]; ok && strings.EqualFold(str(t["@type"]), "AggregateOffer") && str(t["lowPrice"]) == "" {
			return offers(inner)
		}
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, offers(item)...)
		}
		return out
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.2f", t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func attrOrText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	for _, a := range []string{"content", "href", "value"} {
		if v, ok := sel.Attr(a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return text(sel)
}

// productName prefers the main heading, then og:title, then the page title.
func productName(snap *nav.PageSnapshot) string {
	if h := snap.Heading(); h != "" {
		return h
	}
	if og := snap.Meta("og:title"); og != "" {
		return og
	}
	return strings.TrimSpace(snap.Title)
}
