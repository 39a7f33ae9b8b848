package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	auto, err := c.Resolve("auto")
	require.NoError(t, err)
	assert.Equal(t, "a.result__a", auto.Results)
	assert.Equal(t, "https://html.duckduckgo.com/html/?q=widget+4000", auto.SearchPage("widget 4000"))

	fk, err := c.Resolve(" Flipkart ")
	require.NoError(t, err)
	assert.Equal(t, "flipkart", fk.Name)
	assert.Equal(t, "INR", fk.Currency)
	assert.NotEmpty(t, fk.Dismiss)

	rel, err := c.Resolve("reliancedigital")
	require.NoError(t, err)
	assert.Equal(t, "reliance", rel.Name)

	_, err = c.Resolve("ebay")
	assert.Error(t, err)

	assert.Contains(t, c.Names(), "amazon")
}

func TestEngineSelection(t *testing.T) {
	c, err := Load("bing")
	require.NoError(t, err)
	auto, _ := c.Resolve("")
	assert.Equal(t, "li.b_algo h2 a", auto.Results)

	_, err = Load("altavista")
	assert.Error(t, err)
}

func TestParseRejectsIncompleteSite(t *testing.T) {
	_, err := Parse([]byte(`
engines:
  duckduckgo: {entry: "https://d", results: "a", search_input: "input"}
sites:
  broken: {entry: "https://b"}
`), "")
	assert.Error(t, err)
}

func TestPriceSelectorFallback(t *testing.T) {
	assert.Equal(t, GenericPrice, Target{}.PriceSelector())
	assert.Equal(t, ".p", Target{Price: ".p"}.PriceSelector())
}
