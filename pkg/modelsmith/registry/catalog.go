package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the model packages published by the platform. It is
// loaded from a YAML document mapping model IDs to package metadata.
type Catalog struct {
	Models map[string]*ModelPackage `yaml:"models"`
}

// LoadCatalog reads a catalog YAML file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	// IDs live in the map keys; copy them onto the packages so a package
	// is self-describing once resolved.
	for id, pkg := range c.Models {
		if pkg == nil {
			return nil, fmt.Errorf("catalog entry %q is empty", id)
		}
		pkg.ID = id
	}

	return &c, nil
}

// Lookup returns the package for a model ID.
func (c *Catalog) Lookup(id string) (*ModelPackage, error) {
	pkg, ok := c.Models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	// Return a copy so callers cannot mutate the catalog.
	out := *pkg
	out.DefaultEnv = pkg.DefaultEnv.Clone()
	return &out, nil
}

// IDs returns all model IDs in the catalog.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Models))
	for id := range c.Models {
		ids = append(ids, id)
	}
	return ids
}
