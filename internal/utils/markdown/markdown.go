package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Options controls how much page chrome is removed before conversion.
type Options struct {
	// StripBoilerplate removes navigation, cookie banners, modals and similar
	// chrome. Useful for LLM prompts, too aggressive for price lookups since
	// many shops render the buy box inside elements named "header" or "promo".
	StripBoilerplate bool
	// MainOnly restricts conversion to <main> or an equivalent region when present.
	MainOnly bool
}

var (
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
	reImage     = regexp.MustCompile(`!\[[^\]]*\]\([^\)]*\)`)
	reLink      = regexp.MustCompile(`\[([^\]]*)\]\([^\)]*\)`)
	reHeading   = regexp.MustCompile(`^#{1,6}\s+`)
	reBullet    = regexp.MustCompile(`^(?:[-*+]|\d+\.)\s+`)
	reEmphasis  = regexp.MustCompile(`(\*\*|__|\*|_|~~|` + "`" + `)`)
	reSpaces    = regexp.MustCompile(`[ \t\x{00A0}]+`)
	reEscapes   = regexp.MustCompile(`\\([\\\[\]()*_#+\-.!>|` + "`" + `])`)
)

var boilerplateKeywords = []string{
	"cookie", "consent", "banner", "navbar", "nav-", "menu-",
	"pagination", "share", "signup", "signin", "login",
	"advert", "popup", "breadcrumb", "sidebar",
}

// Convert renders HTML as markdown with a light cleanup pass.
func Convert(html string, opts Options) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return ConvertSelection(doc.Selection, opts)
}

// ConvertSelection works on an already parsed document. The selection is
// cloned so callers keep an untouched tree.
func ConvertSelection(root *goquery.Selection, opts Options) string {
	content := root.Find("body").First()
	if content.Length() == 0 {
		content = root
	}
	if opts.MainOnly {
		for _, tag := range []string{"main", `[role="main"]`, "#content", "#main"} {
			if sel := root.Find(tag); sel.Length() > 0 {
				content = sel.First()
				break
			}
		}
	}
	content = content.Clone()

	content.Find("script, style, noscript, svg, iframe, template").Remove()
	if opts.StripBoilerplate {
		content.Find(`nav, aside, form, [role="navigation"], [role="banner"], [role="contentinfo"], [aria-modal]`).Remove()
		content.Find("[class], [id]").Each(func(_ int, sel *goquery.Selection) {
			classVal, _ := sel.Attr("class")
			idVal, _ := sel.Attr("id")
			lower := strings.ToLower(classVal + " " + idVal)
			for _, kw := range boilerplateKeywords {
				if strings.Contains(lower, kw) {
					sel.Remove()
					return
				}
			}
		})
	}

	body, err := content.Html()
	if err != nil {
		return ""
	}
	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}
	out = dropImageLines(out)
	out = reBlankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// TextLines turns markdown into the visible-text index: one entry per
// non-empty line with markdown syntax removed. Consecutive duplicate lines
// collapse into one.
func TextLines(markdown string) []string {
	var out []string
	prev := ""
	for _, raw := range strings.Split(markdown, "\n") {
		line := Plain(raw)
		if line == "" || line == prev {
			continue
		}
		out = append(out, line)
		prev = line
	}
	return out
}

// Plain strips inline markdown from a single line.
func Plain(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "> ")
	line = reHeading.ReplaceAllString(line, "")
	line = reBullet.ReplaceAllString(line, "")
	line = reImage.ReplaceAllString(line, "")
	line = reLink.ReplaceAllString(line, "$1")
	line = reEscapes.ReplaceAllString(line, "$1")
	line = reEmphasis.ReplaceAllString(line, "")
	line = strings.Trim(line, "| ")
	line = strings.ReplaceAll(line, " | ", " ")
	line = reSpaces.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// Truncate caps text for prompt budgets on a line boundary where possible.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > max/2 {
		cut = cut[:i]
	}
	return cut + "\n...[content truncated]"
}

func dropImageLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed != "" && strings.TrimSpace(reImage.ReplaceAllString(trimmed, "")) == "" {
			continue
		}
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return strings.Join(out, "\n")
}
