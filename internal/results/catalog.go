// Package results decides which analysis views the results page shows.
package results

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/fin-ner/wizard/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Tab is one analysis view on the results page.
type Tab struct {
	Kind        models.AnalysisKind `json:"kind" msgpack:"kind" yaml:"kind"`
	Label       string              `json:"label" msgpack:"label" yaml:"label"`
	Description string              `json:"description" msgpack:"description" yaml:"description"`
	Sample      map[string]any      `json:"-" msgpack:"-" yaml:"sample"`
}

// Catalog is the ordered list of every view the results page knows.
type Catalog struct {
	Tabs []Tab `yaml:"tabs"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalogFromReader(f)
}

// ParseCatalogFromReader parses a YAML catalog.
func ParseCatalogFromReader(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Tabs) == 0 {
		return fmt.Errorf("catalog has no tabs")
	}
	seen := make(map[models.AnalysisKind]bool, len(c.Tabs))
	for _, t := range c.Tabs {
		if _, err := models.ParseAnalysisKind(string(t.Kind)); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		if seen[t.Kind] {
			return fmt.Errorf("catalog: duplicate kind %q", t.Kind)
		}
		seen[t.Kind] = true
	}
	return nil
}

// Tab returns the catalog entry for kind.
func (c *Catalog) Tab(kind models.AnalysisKind) (Tab, bool) {
	for _, t := range c.Tabs {
		if t.Kind == kind {
			return t, true
		}
	}
	return Tab{}, false
}
