package nav

import (
	"regexp"
	"strconv"
	"strings"
)

// QueryDefaults are applied to goals built from free text.
type QueryDefaults struct {
	Sites    []string
	Currency string
}

var (
	reBudget       = regexp.MustCompile(`(?i)(?:\b(?:under|below|less\s+than|within|upto|up\s+to|budget(?:\s+of)?)|<=)\s*(?:₹|rs\.?|\$|€|£)?\s*(\d[\d,]*(?:\.\d+)?)\s*(k\b)?`)
	reBudgetSymbol = regexp.MustCompile(`(?i)(?:₹|\$|€|£)\s*(\d[\d,]*(?:\.\d+)?)\s*(k\b)?`)
	reTopN         = regexp.MustCompile(`(?i)\btop\s*(\d+)\b`)
	reSiteWord     = regexp.MustCompile(`(?i)\b(?:on|from|at)\s+([a-z][a-z0-9.\-]*)\b`)

	// Comparative budget phrases are stripped from the search text since
	// the bound lives in the constraints.
	queryFiller = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:find|search|show|get)(?:\s+me)?\b`),
		regexp.MustCompile(`(?i)\b(?:the\s+)?(?:best|cheapest)\b`),
		regexp.MustCompile(`(?i)\btop\s*\d+\b`),
		regexp.MustCompile(`(?i)\b(?:under|below|less\s+than|within|upto|up\s+to|budget(?:\s+of)?)\s*(?:₹|rs\.?|\$|€|£)?\s*\d[\d,.]*\s*k?\b`),
		regexp.MustCompile(`<=\s*(?:₹|rs\.?|\$|€|£)?\s*\d[\d,.]*\s*k?`),
		regexp.MustCompile(`(?i)(?:₹|\$|€|£)\s*\d[\d,.]*\s*k?\b`),
		regexp.MustCompile(`(?i)\bin[\s-]stock\b`),
	}
	reInStock = regexp.MustCompile(`(?i)\bin[\s-]stock\b`)
)

// ParseQuery turns free text like "top 5 laptops under 50k on flipkart" into
// a goal: the budget becomes MaxPrice, "top N" becomes MaxResults, known site
// words become Sites and the remaining words form the search query.
func ParseQuery(text string, known []string, def QueryDefaults) Goal {
	g := Goal{Constraints: Constraints{Currency: def.Currency}}
	q := strings.TrimSpace(text)

	if budget, ok := parseBudget(q); ok {
		g.Constraints.MaxPrice = &budget
	}
	if m := reTopN.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			g.Constraints.MaxResults = n
		}
	}
	if reInStock.MatchString(q) {
		g.Constraints.InStockOnly = true
	}

	isKnown := map[string]bool{}
	for _, k := range known {
		isKnown[strings.ToLower(k)] = true
	}
	for _, m := range reSiteWord.FindAllStringSubmatch(q, -1) {
		site := strings.ToLower(m[1])
		if isKnown[site] {
			g.Sites = append(g.Sites, site)
			q = strings.Replace(q, m[0], " ", 1)
		}
	}
	if len(g.Sites) == 0 {
		g.Sites = append(g.Sites, def.Sites...)
	}

	for _, re := range queryFiller {
		q = re.ReplaceAllString(q, " ")
	}
	g.Query = strings.Join(strings.Fields(q), " ")
	return g
}

// parseBudget reads an upper bound introduced by a comparative ("under 50k",
// "below ₹49,990") and falls back to a bare currency amount. A "k" suffix
// multiplies by a thousand.
func parseBudget(q string) (float64, bool) {
	for _, re := range []*regexp.Regexp{reBudget, reBudgetSymbol} {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		if m[2] != "" {
			v *= 1000
		}
		return v, true
	}
	return 0, false
}
