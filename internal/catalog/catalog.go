// Package catalog holds the static mapping of named categories to RSS feeds.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"newslens/internal/model"
)

// Built-in sources mirror the categories the tool grew up with:
// Estonian defaults, an international set, and a tech set.
var defaultSources = []model.Source{
	{Name: "ERR", URL: "https://www.err.ee/rss", Category: "default"},
	{Name: "Postimees", URL: "https://www.postimees.ee/rss", Category: "default"},
	{Name: "Delfi", URL: "https://www.delfi.ee/rss", Category: "default"},
}

var internationalSources = []model.Source{
	{Name: "BBC", URL: "http://feeds.bbci.co.uk/news/rss.xml", Category: "international"},
	{Name: "Reuters", URL: "https://www.reutersagency.com/feed/", Category: "international"},
	{Name: "EU Commission", URL: "https://ec.europa.eu/commission/presscorner/api/files/feed/en.xml", Category: "international"},
	{Name: "Guardian", URL: "https://www.theguardian.com/international/rss", Category: "international"},
	{Name: "DW", URL: "https://rss.dw.com/xml/rss-en-all", Category: "international"},
}

var techSources = []model.Source{
	{Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Category: "tech"},
	{Name: "Ars Technica", URL: "http://feeds.arstechnica.com/arstechnica/index", Category: "tech"},
	{Name: "Wired", URL: "https://www.wired.com/feed/rss", Category: "tech"},
}

// Catalog resolves categories to source lists.
type Catalog struct {
	sources map[string][]model.Source
}

// New builds the catalog from the built-in sets.
func New() *Catalog {
	c := &Catalog{sources: make(map[string][]model.Source)}
	c.sources["default"] = append([]model.Source(nil), defaultSources...)
	c.sources["international"] = append([]model.Source(nil), internationalSources...)
	c.sources["tech"] = append([]model.Source(nil), techSources...)
	return c
}

// sourcesFile is the YAML shape of SOURCES_FILE: category -> name -> url.
type sourcesFile map[string]map[string]string

// LoadFile merges extra sources from a YAML file. A source with the same
// URL as a built-in one replaces it.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sources file: %w", err)
	}

	var extra sourcesFile
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("parse sources file: %w", err)
	}

	for category, entries := range extra {
		for name, url := range entries {
			c.add(model.Source{Name: name, URL: url, Category: category})
		}
	}
	return nil
}

func (c *Catalog) add(src model.Source) {
	list := c.sources[src.Category]
	for i, existing := range list {
		if existing.URL == src.URL {
			list[i] = src
			c.sources[src.Category] = list
			return
		}
	}
	c.sources[src.Category] = append(list, src)
}

// ByCategory returns the sources of one category, or every source for "all".
// Unknown categories fall back to the default set.
func (c *Catalog) ByCategory(category string) []model.Source {
	switch category {
	case "all":
		return c.All()
	case "":
		category = "default"
	}
	if list, ok := c.sources[category]; ok {
		return append([]model.Source(nil), list...)
	}
	return append([]model.Source(nil), c.sources["default"]...)
}

// All returns every source, grouped by category name order.
func (c *Catalog) All() []model.Source {
	categories := make([]string, 0, len(c.sources))
	for cat := range c.sources {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var all []model.Source
	for _, cat := range categories {
		all = append(all, c.sources[cat]...)
	}
	return all
}

// Categories lists known category names plus the "all" pseudo-category.
func (c *Catalog) Categories() []string {
	categories := make([]string, 0, len(c.sources)+1)
	for cat := range c.sources {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return append(categories, "all")
}
