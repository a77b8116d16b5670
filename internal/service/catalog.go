package service

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrExampleNotFound = errors.New("example not found")

//go:embed catalog/examples.yaml
var defaultCatalog []byte

type catalogFile struct {
	Examples []Example `json:"examples"`
}

// CatalogService serves the example catalog.
type CatalogService struct {
	mu       sync.RWMutex
	examples []Example
	byID     map[string]int
}

// NewCatalogService loads the catalog at path, or the built-in catalog
// when path is empty.
func NewCatalogService(path string) (*CatalogService, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	examples, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	s := &CatalogService{}
	s.set(examples)
	return s, nil
}

// ParseCatalog decodes a YAML or JSON catalog. YAML anchors are resolved
// and values are normalised to their JSON forms, so numbers decode as
// float64 either way.
func ParseCatalog(data []byte) ([]Example, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	j, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	var f catalogFile
	if err := json.Unmarshal(j, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := map[string]bool{}
	for i, ex := range f.Examples {
		if ex.ID == "" {
			return nil, fmt.Errorf("parse catalog: example %d has no id", i)
		}
		if seen[ex.ID] {
			return nil, fmt.Errorf("parse catalog: duplicate example id %q", ex.ID)
		}
		seen[ex.ID] = true
	}
	return f.Examples, nil
}

func (s *CatalogService) set(examples []Example) {
	byID := make(map[string]int, len(examples))
	for i, ex := range examples {
		byID[ex.ID] = i
	}
	s.mu.Lock()
	s.examples = examples
	s.byID = byID
	s.mu.Unlock()
}

// List returns the examples in catalog order.
func (s *CatalogService) List() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Example(nil), s.examples...)
}

func (s *CatalogService) Get(id string) (Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Example{}, fmt.Errorf("%w: %q", ErrExampleNotFound, id)
	}
	return s.examples[i], nil
}
