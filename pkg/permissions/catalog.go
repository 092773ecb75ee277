package permissions

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the administratively seeded permission reference data
type Catalog struct {
	Permissions []Permission `yaml:"permissions"`
}

// LoadCatalog decodes and validates a YAML catalog
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode permission catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// LoadCatalogFile reads a catalog from path
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open permission catalog: %w", err)
	}
	defer f.Close()

	return LoadCatalog(f)
}

// Validate checks every entry has code == resource:action and no code
// appears twice.
func (c *Catalog) Validate() error {
	if len(c.Permissions) == 0 {
		return fmt.Errorf("permission catalog is empty")
	}

	seen := make(map[string]bool, len(c.Permissions))
	for i, p := range c.Permissions {
		if p.Resource == "" || p.Action == "" {
			return fmt.Errorf("permission %d: resource and action are required", i)
		}
		want := p.Resource + ":" + p.Action
		if p.Code != want {
			return fmt.Errorf("permission %d: code %q must be %q", i, p.Code, want)
		}
		if seen[p.Code] {
			return fmt.Errorf("permission %d: duplicate code %q", i, p.Code)
		}
		seen[p.Code] = true
	}
	return nil
}
