package sites

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var builtin []byte

// GenericPrice is used on product pages of sites without a price selector.
const GenericPrice = `[itemprop="price"], [class*="price"], [id*="price"], [data-testid*="price"]`

// Target describes how to search one site and where its prices live.
type Target struct {
	Name        string   `yaml:"-"`
	Aliases     []string `yaml:"aliases"`
	Entry       string   `yaml:"entry"`
	SearchInput string   `yaml:"search_input"`
	SearchURL   string   `yaml:"search_url"`
	Results     string   `yaml:"results"`
	Price       string   `yaml:"price"`
	Currency    string   `yaml:"currency"`
	Dismiss     []string `yaml:"dismiss"`
}

// SearchPage fills the {query} placeholder. Empty when the site has no
// search url template.
func (t Target) SearchPage(query string) string {
	if t.SearchURL == "" {
		return ""
	}
	return strings.ReplaceAll(t.SearchURL, "{query}", url.QueryEscape(query))
}

// PriceSelector falls back to a generic price query.
func (t Target) PriceSelector() string {
	if t.Price != "" {
		return t.Price
	}
	return GenericPrice
}

type file struct {
	Engines map[string]Target `yaml:"engines"`
	Sites   map[string]Target `yaml:"sites"`
}

// Catalog resolves site names and the auto search engine.
type Catalog struct {
	engines map[string]Target
	sites   map[string]Target
	aliases map[string]string
	engine  string
}

// Load parses the built-in catalog. engine picks the search engine for auto
// goals; an unknown engine is an error.
func Load(engine string) (*Catalog, error) {
	return Parse(builtin, engine)
}

// LoadFile reads an alternative catalog from disk.
func LoadFile(path, engine string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b, engine)
}

func Parse(b []byte, engine string) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		engines: map[string]Target{},
		sites:   map[string]Target{},
		aliases: map[string]string{},
	}
	for name, t := range f.Engines {
		t.Name = "auto"
		c.engines[strings.ToLower(name)] = t
	}
	for name, t := range f.Sites {
		name = strings.ToLower(name)
		t.Name = name
		if t.Entry == "" || t.Results == "" {
			return nil, fmt.Errorf("site %s: entry and results are required", name)
		}
		if t.SearchInput == "" && t.SearchURL == "" {
			return nil, fmt.Errorf("site %s: search_input or search_url is required", name)
		}
		c.sites[name] = t
		for _, a := range t.Aliases {
			c.aliases[strings.ToLower(a)] = name
		}
	}
	if engine == "" {
		engine = "duckduckgo"
	}
	if _, ok := c.engines[strings.ToLower(engine)]; !ok {
		return nil, fmt.Errorf("unknown search engine %q", engine)
	}
	c.engine = strings.ToLower(engine)
	return c, nil
}

// Resolve maps a goal site name to its target. "auto" resolves to the
// configured search engine.
func (c *Catalog) Resolve(name string) (Target, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return c.engines[c.engine], nil
	}
	if canonical, ok := c.aliases[name]; ok {
		name = canonical
	}
	if t, ok := c.sites[name]; ok {
		return t, nil
	}
	return Target{}, fmt.Errorf("unknown site %q", name)
}

// Names lists known sites and their aliases, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.sites)+len(c.aliases))
	for n := range c.sites {
		out = append(out, n)
	}
	for a := range c.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
