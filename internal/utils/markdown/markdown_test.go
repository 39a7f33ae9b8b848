package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlain(t *testing.T) {
	cases := map[string]string{
		"## Widget 4000":                    "Widget 4000",
		"- [Buy **now**](https://x.io)":     "Buy now",
		"![logo](https://x.io/a.png) Deals": "Deals",
		"Price:   **$19.99**":               "Price: $19.99",
		"  ":                                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Plain(in), in)
	}
}

func TestConvertAndTextLines(t *testing.T) {
	html := `<html><head><title>x</title><script>var a = 1;</script></head>
<body><h1>Widget 4000</h1><p>Price: <b>$19.99</b></p><p>Price: <b>$19.99</b></p></body></html>`

	out := Convert(html, Options{})
	assert.NotContains(t, out, "var a")

	lines := TextLines(out)
	assert.Equal(t, []string{"Widget 4000", "Price: $19.99"}, lines)
}

func TestConvertStripsBoilerplate(t *testing.T) {
	html := `<body><nav>Home</nav><div class="cookie-banner">Accept cookies</div><main><p>Keep me</p></main></body>`

	out := Convert(html, Options{StripBoilerplate: true, MainOnly: true})
	assert.Equal(t, "Keep me", out)
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("line\n", 10)
	got := Truncate(text, 22)
	assert.True(t, strings.HasSuffix(got, "[content truncated]"))
	assert.Equal(t, text, Truncate(text, 1000))
}
