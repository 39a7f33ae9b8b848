package extract

import (
	"regexp"
	"strconv"
	"strings"

	"navigator/internal/core/nav"
)

// Money is a parsed amount with its ISO currency code.
type Money struct {
	Amount   float64
	Currency string
}

var symbols = map[string]string{
	"us$": "USD", "c$": "CAD", "a$": "AUD", "s$": "SGD",
	"$": "USD", "₹": "INR", "€": "EUR", "£": "GBP", "¥": "JPY",
	"rs": "INR", "rs.": "INR",
}

var (
	reMoneyPrefix = regexp.MustCompile(`(?i)(us\$|c\$|a\$|s\$|₹|\brs\.?|\b(?:inr|usd|eur|gbp|jpy|cad|aud|chf|cny|sgd)\b|\$|€|£|¥)\s*(\d[\d.,]*\d|\d)`)
	reMoneySuffix = regexp.MustCompile(`(?i)(\d[\d.,]*\d|\d)\s*(₹|€|£|\b(?:inr|usd|eur|gbp|jpy|cad|aud|chf|cny|sgd)\b)`)
	reBareNumber  = regexp.MustCompile(`\d[\d.,]*\d|\d`)
)

// ParseMoney finds the first amount with a currency marker in text, such as
// "₹49,990", "$19.99", "1.299,99 €" or "EUR 12". When text has no marker the
// first bare number is used with fallback as currency, if fallback is set.
func ParseMoney(text, fallback string) (Money, bool) {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	best := -1
	var m Money
	if loc := reMoneyPrefix.FindStringSubmatchIndex(text); loc != nil {
		if amount, ok := ParseAmount(text[loc[4]:loc[5]]); ok {
			best = loc[0]
			m = Money{Amount: amount, Currency: currencyCode(text[loc[2]:loc[3]])}
		}
	}
	if loc := reMoneySuffix.FindStringSubmatchIndex(text); loc != nil && (best < 0 || loc[0] < best) {
		if amount, ok := ParseAmount(text[loc[2]:loc[3]]); ok {
			best = loc[0]
			m = Money{Amount: amount, Currency: currencyCode(text[loc[4]:loc[5]])}
		}
	}
	if best >= 0 {
		return m, true
	}
	if fallback == "" {
		return Money{}, false
	}
	num := reBareNumber.FindString(text)
	if num == "" {
		return Money{}, false
	}
	amount, ok := ParseAmount(num)
	if !ok {
		return Money{}, false
	}
	return Money{Amount: amount, Currency: strings.ToUpper(fallback)}, true
}

func currencyCode(marker string) string {
	lower := strings.ToLower(strings.TrimSpace(marker))
	if code, ok := symbols[lower]; ok {
		return code
	}
	return strings.ToUpper(lower)
}

// ParseAmount reads a number written with either separator convention.
// The last separator is the decimal point when both appear. A lone
// separator followed by exactly three digits groups thousands.
func ParseAmount(s string) (float64, bool) {
	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingle(s, ",")
	case lastDot >= 0:
		s = normalizeSingle(s, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func normalizeSingle(s, sep string) string {
	parts := strings.Split(s, sep)
	tail := parts[len(parts)-1]
	if len(parts) == 2 && len(tail) != 3 {
		return parts[0] + "." + tail
	}
	return strings.Join(parts, "")
}

// normalizeAvailability maps schema.org URLs and free text to one of the
// nav availability constants. Unknown values come back empty.
func normalizeAvailability(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(strings.TrimPrefix(v, "https://schema.org/"), "http://schema.org/")
	switch {
	case v == "":
		return ""
	case strings.Contains(v, "outofstock"), strings.Contains(v, "out of stock"),
		strings.Contains(v, "soldout"), strings.Contains(v, "sold out"),
		strings.Contains(v, "discontinued"), strings.Contains(v, "currently unavailable"):
		return nav.AvailabilityOutOfStock
	case strings.Contains(v, "preorder"), strings.Contains(v, "pre-order"):
		return nav.AvailabilityPreOrder
	case strings.Contains(v, "instock"), strings.Contains(v, "in stock"),
		strings.Contains(v, "limitedavailability"), strings.Contains(v, "onlineonly"):
		return nav.AvailabilityInStock
	}
	return ""
}

// pageAvailability scans visible text for stock signals. Negative signals
// win over positive ones since shops often keep a disabled buy button.
func pageAvailability(snap *nav.PageSnapshot) string {
	for _, s := range []string{"out of stock", "currently unavailable", "sold out"} {
		if snap.Contains(s) {
			return nav.AvailabilityOutOfStock
		}
	}
	if snap.Contains("pre-order") {
		return nav.AvailabilityPreOrder
	}
	for _, s := range []string{"in stock", "add to cart", "buy now"} {
		if snap.Contains(s) {
			return nav.AvailabilityInStock
		}
	}
	return ""
}
