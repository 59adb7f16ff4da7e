// Package catalog holds the read-only registry of council services the
// intake dialogue can collect requests for.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed services.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Services []models.ServiceDefinition `yaml:"services" validate:"required,min=1,dive"`
}

// Catalog is an immutable, ordered set of service definitions.
// It is safe for concurrent use because nothing mutates it after construction.
type Catalog struct {
	services []models.ServiceDefinition
	byID     map[string]int
}

// New builds a catalog from definitions, rejecting duplicates and invalid entries.
func New(services []models.ServiceDefinition) (*Catalog, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(catalogFile{Services: services}); err != nil {
		return nil, fmt.Errorf("invalid service catalog: %w", err)
	}

	c := &Catalog{
		services: make([]models.ServiceDefinition, len(services)),
		byID:     make(map[string]int, len(services)),
	}
	copy(c.services, services)

	for i, svc := range c.services {
		if _, dup := c.byID[svc.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", svc.ID)
		}
		seen := make(map[string]bool, len(svc.Fields))
		for _, f := range svc.Fields {
			if seen[f.ID] {
				return nil, fmt.Errorf("service %q: duplicate field id %q", svc.ID, f.ID)
			}
			seen[f.ID] = true
		}
		c.byID[svc.ID] = i
	}

	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(file.Services)
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in council catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Get looks up a service by identifier.
func (c *Catalog) Get(id string) (models.ServiceDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.ServiceDefinition{}, false
	}
	return c.services[i], true
}

// List returns the services in catalog order.
func (c *Catalog) List() []models.ServiceDefinition {
	out := make([]models.ServiceDefinition, len(c.services))
	copy(out, c.services)
	return out
}

// Len is the number of services.
func (c *Catalog) Len() int {
	return len(c.services)
}
