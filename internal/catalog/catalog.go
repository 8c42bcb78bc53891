// Package catalog holds the ordered, read-only set of category definitions
// used for classification and ticket routing.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

//go:embed categories.yaml
var defaultCategories []byte

// Catalog is immutable once built. Iteration order is the load order.
type Catalog struct {
	categories []domain.Category
	byCode     map[string]int
}

// New validates defs and builds a catalog. Duplicate codes are rejected.
func New(defs []domain.Category) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("catalog: no categories")
	}
	c := &Catalog{
		categories: make([]domain.Category, 0, len(defs)),
		byCode:     make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		def.Code = strings.ToLower(strings.TrimSpace(def.Code))
		if _, dup := c.byCode[def.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", def.Code)
		}
		keywords := make([]string, 0, len(def.Keywords))
		for _, kw := range def.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		def.Keywords = keywords
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		c.byCode[def.Code] = len(c.categories)
		c.categories = append(c.categories, def)
	}
	return c, nil
}

// All returns a copy of the categories in iteration order.
func (c *Catalog) All() []domain.Category {
	out := make([]domain.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Get looks a category up by code, case-insensitively.
func (c *Catalog) Get(code string) (domain.Category, bool) {
	idx, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return domain.Category{}, false
	}
	return c.categories[idx], true
}

// Codes lists category codes in iteration order.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.Code
	}
	return out
}

// Len is the number of categories.
func (c *Catalog) Len() int { return len(c.categories) }

type fileCategory struct {
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Priority    string   `yaml:"priority"`
	SLAHours    int      `yaml:"sla_hours"`
	Team        string   `yaml:"team"`
	Keywords    []string `yaml:"keywords"`
}

type fileCatalog struct {
	Categories []fileCategory `yaml:"categories"`
}

// Parse decodes a yaml catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	defs := make([]domain.Category, 0, len(doc.Categories))
	for _, fc := range doc.Categories {
		defs = append(defs, domain.Category{
			Code:        fc.Code,
			Name:        fc.Name,
			Description: fc.Description,
			Keywords:    fc.Keywords,
			Priority:    domain.Priority(strings.ToLower(fc.Priority)),
			SLAHours:    fc.SLAHours,
			TeamName:    fc.Team,
		})
	}
	return New(defs)
}

// LoadFile reads a yaml catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCategories)
	if err != nil {
		panic(err)
	}
	return c
}

// Source lists category definitions from storage.
type Source interface {
	ListActive(ctx context.Context) ([]domain.Category, error)
}

// Load picks the first non-empty source: storage, then file, then the
// built-in defaults. A storage error is returned, an empty result is not.
func Load(ctx context.Context, src Source, path string) (*Catalog, error) {
	if src != nil {
		defs, err := src.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list categories: %w", err)
		}
		if len(defs) > 0 {
			return New(defs)
		}
	}
	if path != "" {
		return LoadFile(path)
	}
	return Default(), nil
}
