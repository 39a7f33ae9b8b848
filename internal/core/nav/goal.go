package nav

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// SiteAuto lets the planner go through a search engine instead of a known shop.
const SiteAuto = "auto"

const (
	DefaultMaxSteps = 20
	DefaultTimeout  = 2 * time.Minute
	maxQueryLength  = 512
)

// Goal is one bounded navigation task. It is never mutated after submission.
type Goal struct {
	ID          string        `json:"id"`
	Query       string        `json:"query"`
	Sites       []string      `json:"sites,omitempty"`
	Constraints Constraints   `json:"constraints"`
	MaxSteps    int           `json:"max_steps"`
	Timeout     time.Duration `json:"timeout"`
}

type Constraints struct {
	MaxPrice    *float64 `json:"max_price,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	InStockOnly bool     `json:"in_stock_only,omitempty"`
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	MaxResults  int      `json:"max_results,omitempty"`
}

// Targets returns the normalized site list, defaulting to auto.
func (g Goal) Targets() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range g.Sites {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{SiteAuto}
	}
	return out
}

// WithDefaults fills zero step and timeout bounds.
func (g Goal) WithDefaults(maxSteps int, timeout time.Duration) Goal {
	if g.MaxSteps <= 0 {
		g.MaxSteps = maxSteps
	}
	if g.Timeout <= 0 {
		g.Timeout = timeout
	}
	return g
}

// Validate reports a MalformedGoal failure for goals that can never run.
func (g Goal) Validate() error {
	q := strings.TrimSpace(g.Query)
	switch {
	case q == "":
		return Fail(FailureMalformedGoal, "query is empty")
	case len(q) > maxQueryLength:
		return Fail(FailureMalformedGoal, "query longer than %d bytes", maxQueryLength)
	case g.MaxSteps <= 0:
		return Fail(FailureMalformedGoal, "max steps must be positive, got %d", g.MaxSteps)
	case g.Timeout <= 0:
		return Fail(FailureMalformedGoal, "timeout must be positive, got %s", g.Timeout)
	}
	c := g.Constraints
	if c.MaxPrice != nil && *c.MaxPrice < 0 {
		return Fail(FailureMalformedGoal, "max price is negative")
	}
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return Fail(FailureMalformedGoal, "min price is negative")
	}
	if c.MaxPrice != nil && c.MinPrice != nil && *c.MinPrice > *c.MaxPrice {
		return Fail(FailureMalformedGoal, "min price %.2f above max price %.2f", *c.MinPrice, *c.MaxPrice)
	}
	if c.MaxResults < 0 {
		return Fail(FailureMalformedGoal, "max results is negative")
	}
	if c.Currency != "" && !KnownCurrency(c.Currency) {
		return Fail(FailureMalformedGoal, "unknown currency %q", c.Currency)
	}
	return nil
}

type fingerprintInput struct {
	Query       string   `json:"q"`
	Sites       []string `json:"s"`
	MaxPrice    *float64 `json:"max,omitempty"`
	MinPrice    *float64 `json:"min,omitempty"`
	Currency    string   `json:"cur,omitempty"`
	InStockOnly bool     `json:"stock,omitempty"`
	Include     []string `json:"inc,omitempty"`
	Exclude     []string `json:"exc,omitempty"`
	MaxResults  int      `json:"n,omitempty"`
}

// Fingerprint identifies equivalent goals: same normalized query, sites and
// constraints. ID, step budget and timeout do not take part.
func Fingerprint(g Goal) string {
	sites := g.Targets()
	sort.Strings(sites)
	in := fingerprintInput{
		Query:       NormalizeQuery(g.Query),
		Sites:       sites,
		MaxPrice:    g.Constraints.MaxPrice,
		MinPrice:    g.Constraints.MinPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(g.Constraints.Currency)),
		InStockOnly: g.Constraints.InStockOnly,
		Include:     normalizeWords(g.Constraints.Include),
		Exclude:     normalizeWords(g.Constraints.Exclude),
		MaxResults:  g.Constraints.MaxResults,
	}
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func normalizeWords(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = NormalizeQuery(w); w != "" {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}
