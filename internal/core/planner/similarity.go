package planner

import (
	"strings"
	"unicode"
)

// Scorer rates how well a result text matches the goal query, in [0,1].
type Scorer interface {
	Score(query, text string) float64
}

// Dice is the Sørensen–Dice coefficient over normalized word tokens.
// Repeated words count once and a small stop list is ignored.
type Dice struct{}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "for": true,
	"of": true, "with": true, "in": true, "on": true, "to": true, "by": true,
	"buy": true, "online": true, "price": true, "best": true,
}

func (Dice) Score(query, text string) float64 {
	q := tokens(query)
	t := tokens(text)
	if len(q) == 0 || len(t) == 0 {
		return 0
	}
	shared := 0
	for w := range q {
		if t[w] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(q)+len(t))
}

func tokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopWords[w] {
			out[w] = true
		}
	}
	return out
}
