package nav

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"navigator/internal/utils/markdown"
)

// PageSnapshot is a read-only view of a page at one instant: the parsed
// tree plus a visible-text index. Planner and extractor only see pages
// through it.
type PageSnapshot struct {
	URL        string
	Title      string
	CapturedAt time.Time
	Hash       string

	doc  *goquery.Document
	text []string
}

// Link is a candidate anchor with its position among the selector's matches.
type Link struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Position int    `json:"position"`
}

// NewSnapshot parses html. The text index is built eagerly so the snapshot
// stays immutable afterwards.
func NewSnapshot(pageURL, title, html string) (*PageSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	sum := sha256.Sum256([]byte(html))
	return &PageSnapshot{
		URL:        pageURL,
		Title:      title,
		CapturedAt: time.Now(),
		Hash:       hex.EncodeToString(sum[:8]),
		doc:        doc,
		text:       markdown.TextLines(markdown.ConvertSelection(doc.Selection, markdown.Options{})),
	}, nil
}

// Find runs a CSS query. The returned selection must not be mutated.
func (p *PageSnapshot) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Has reports whether selector matches anything. Comma lists match if any part does.
func (p *PageSnapshot) Has(selector string) bool {
	return selector != "" && p.doc.Find(selector).Length() > 0
}

// Text returns the visible-text index, one entry per rendered line.
func (p *PageSnapshot) Text() []string {
	out := make([]string, len(p.text))
	copy(out, p.text)
	return out
}

// Contains searches the visible text case-insensitively.
func (p *PageSnapshot) Contains(s string) bool {
	s = strings.ToLower(s)
	for _, line := range p.text {
		if strings.Contains(strings.ToLower(line), s) {
			return true
		}
	}
	return false
}

// HTMLContains searches raw markup, for markers that never render as text.
func (p *PageSnapshot) HTMLContains(s string) bool {
	html, err := p.doc.Html()
	return err == nil && strings.Contains(html, s)
}

// Meta returns the content of <meta property=name> or <meta name=name>.
func (p *PageSnapshot) Meta(name string) string {
	sel := p.doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"], meta[itemprop="` + name + `"]`).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

// Heading returns the first h1 text.
func (p *PageSnapshot) Heading() string {
	return strings.Join(strings.Fields(p.doc.Find("h1").First().Text()), " ")
}

// Links lists anchors matched by selector, or every anchor when selector is
// empty. Position is the index among the selector's matches, so it can be
// replayed as the nth match in a live page. Matches that are not anchors
// resolve to their first descendant or closest ancestor anchor.
func (p *PageSnapshot) Links(selector string) []Link {
	q := selector
	if q == "" {
		q = "a[href]"
	}
	base, _ := url.Parse(p.URL)
	var out []Link
	p.doc.Find(q).Each(func(i int, s *goquery.Selection) {
		a := s
		if goquery.NodeName(s) != "a" {
			if inner := s.Find("a[href]").First(); inner.Length() > 0 {
				a = inner
			} else {
				a = s.Closest("a[href]")
			}
		}
		href, ok := a.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text, _ = a.Attr("title")
		}
		if base != nil {
			if u, err := base.Parse(href); err == nil {
				href = u.String()
			}
		}
		out = append(out, Link{Text: text, Href: href, Position: i})
	})
	return out
}

// JSONLD returns every JSON-LD object on the page. Top-level arrays and
// @graph containers are flattened; blocks that fail to parse are skipped.
func (p *PageSnapshot) JSONLD() []map[string]any {
	var out []map[string]any
	p.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &raw); err != nil {
			return
		}
		out = flattenLD(out, raw)
	})
	return out
}

func flattenLD(out []map[string]any, v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = flattenLD(out, item)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			return flattenLD(out, graph)
		}
		out = append(out, t)
	}
	return out
}
