package feed

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var embeddedCategories embed.FS

// CategoryAll matches every deal.
const CategoryAll = "all"

// Category is a named set of title keywords.
type Category struct {
	ID       string   `yaml:"id" json:"id"`
	Label    string   `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

// Catalog is the fixed set of categories a feed can be filtered by.
type Catalog struct {
	categories []Category
	byID       map[string]Category
}

// NewCatalog builds a catalog, lowercasing IDs and keywords.
// Categories without an ID or keywords are dropped.
func NewCatalog(categories []Category) *Catalog {
	c := &Catalog{byID: make(map[string]Category, len(categories))}
	for _, cat := range categories {
		id := strings.ToLower(strings.TrimSpace(cat.ID))
		if id == "" || id == CategoryAll {
			continue
		}
		var keywords []string
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		normalized := Category{ID: id, Label: cat.Label, Keywords: keywords}
		if normalized.Label == "" {
			normalized.Label = id
		}
		if _, dup := c.byID[id]; !dup {
			c.categories = append(c.categories, normalized)
		}
		c.byID[id] = normalized
	}
	return c
}

// Categories returns the catalog entries in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Resolve maps a user supplied selector to a known category ID.
// Anything unrecognised resolves to CategoryAll.
func (c *Catalog) Resolve(selector string) string {
	id := strings.ToLower(strings.TrimSpace(selector))
	if _, ok := c.byID[id]; ok {
		return id
	}
	return CategoryAll
}

// Matches reports whether title belongs to the category.
func (c *Catalog) Matches(categoryID, title string) bool {
	id := c.Resolve(categoryID)
	if id == CategoryAll {
		return true
	}
	lowerTitle := strings.ToLower(title)
	for _, kw := range c.byID[id].Keywords {
		if strings.Contains(lowerTitle, kw) {
			return true
		}
	}
	return false
}

// Classify returns the IDs of every category whose keywords appear in title.
func (c *Catalog) Classify(title string) []string {
	var ids []string
	for _, cat := range c.categories {
		if c.Matches(cat.ID, title) {
			ids = append(ids, cat.ID)
		}
	}
	return ids
}

// LoadCategoriesFromBytes parses a YAML category table.
func LoadCategoriesFromBytes(data []byte) ([]Category, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category YAML: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category YAML defines no categories")
	}
	return file.Categories, nil
}

// LoadCatalog loads categories from an explicit file when path is set, then the
// embedded table, and finally the compiled-in defaults.
func LoadCatalog(path string) *Catalog {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			cats, parseErr := LoadCategoriesFromBytes(data)
			if parseErr == nil {
				slog.Info("Loaded categories from file", "path", path, "count", len(cats))
				return NewCatalog(cats)
			}
			err = parseErr
		}
		slog.Warn("Failed to load categories file, trying embedded table", "path", path, "error", err)
	}

	data, err := embeddedCategories.ReadFile("categories.yaml")
	if err == nil {
		cats, parseErr := LoadCategoriesFromBytes(data)
		if parseErr == nil {
			return NewCatalog(cats)
		}
		slog.Warn("Embedded categories failed to parse. Using defaults.", "error", parseErr)
	}
	return NewCatalog(DefaultCategories())
}

// DefaultCategories is the fallback table when no YAML can be read.
func DefaultCategories() []Category {
	return []Category{
		{ID: "tech", Label: "Tech", Keywords: []string{"laptop", "macbook", "iphone", "samsung", "nintendo", "headphones", "monitor"}},
		{ID: "grocery", Label: "Grocery", Keywords: []string{"costco", "grocery", "walmart", "food"}},
		{ID: "travel", Label: "Travel", Keywords: []string{"flight", "hotel", "travel"}},
		{ID: "fashion", Label: "Fashion", Keywords: []string{"shoes", "jacket", "clothing"}},
	}
}
