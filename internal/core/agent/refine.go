package agent

import (
	"sort"
	"strconv"
	"strings"

	"navigator/internal/core/nav"
)

// Refine applies the goal constraints to extracted records: price range,
// currency, stock, keywords. Then it drops duplicates by source URL and
// price, sorts by price and name, and caps the list at MaxResults.
// Records with unknown availability survive InStockOnly.
func Refine(records []nav.ExtractedRecord, c nav.Constraints) []nav.ExtractedRecord {
	include := lowerWords(c.Include)
	exclude := lowerWords(c.Exclude)
	seen := map[string]bool{}
	out := make([]nav.ExtractedRecord, 0, len(records))
	for _, r := range records {
		if c.MinPrice != nil && r.Price < *c.MinPrice {
			continue
		}
		if c.MaxPrice != nil && r.Price > *c.MaxPrice {
			continue
		}
		if c.Currency != "" && !strings.EqualFold(r.Currency, c.Currency) {
			continue
		}
		if c.InStockOnly && r.Availability == nav.AvailabilityOutOfStock {
			continue
		}
		if !keywordsMatch(strings.ToLower(r.Name), include, exclude) {
			continue
		}
		key := r.SourceURL + "|" + strconv.FormatFloat(r.Price, 'f', 2, 64)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if c.MaxResults > 0 && len(out) > c.MaxResults {
		out = out[:c.MaxResults]
	}
	return out
}

// keywordsMatch wants every include word and no exclude word in name.
func keywordsMatch(name string, include, exclude []string) bool {
	for _, w := range include {
		if !strings.Contains(name, w) {
			return false
		}
	}
	for _, w := range exclude {
		if strings.Contains(name, w) {
			return false
		}
	}
	return true
}

func lowerWords(words []string) []string {
	var out []string
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
