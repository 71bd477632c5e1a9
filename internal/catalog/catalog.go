// Package catalog loads reusable producer definitions from catalogRoot
// (§9 Configuration.catalogRoot): YAML files, one producer template per
// file, keyed by the producerRef name a blueprint's Producer.ProducerRef
// points at. A blueprint producer only has to declare the fields it
// overrides; anything left zero-valued is filled from its catalog entry
// before the Graph Builder sees it.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"weavecore/internal/blueprint"
)

// Entry is one catalog-defined producer template.
type Entry struct {
	ProducerRef  string                 `yaml:"producerRef"`
	OutputSchema map[string]interface{} `yaml:"outputSchema,omitempty"`
	InputSchema  map[string]interface{} `yaml:"inputSchema,omitempty"`
	Provider     string                 `yaml:"provider,omitempty"`
	Model        string                 `yaml:"model,omitempty"`
	SDKMapping   []blueprint.SDKMapping `yaml:"sdkMapping,omitempty"`
}

// Catalog is an in-memory index of every entry found under catalogRoot,
// keyed by ProducerRef.
type Catalog struct {
	byRef map[string]Entry
}

// Load reads every *.yaml/*.yml file directly under root into a Catalog. An
// empty root yields an empty, usable Catalog rather than an error, since
// catalogRoot is optional (§9).
func Load(root string) (*Catalog, error) {
	c := &Catalog{byRef: map[string]Entry{}}
	if root == "" {
		return c, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("catalog: reading %s: %w", root, err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		ext := filepath.Ext(de.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", de.Name(), err)
		}
		var e Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("catalog: parsing %s: %w", de.Name(), err)
		}
		if e.ProducerRef == "" {
			return nil, fmt.Errorf("catalog: %s: producerRef is required", de.Name())
		}
		c.byRef[e.ProducerRef] = e
	}
	return c, nil
}

// ApplyDefaults fills any zero-valued field on p from p.ProducerRef's
// catalog entry, in place. A blueprint author who fully specifies a
// producer overrides the catalog entirely; a blank field inherits it.
func (c *Catalog) ApplyDefaults(p *blueprint.Producer) error {
	if c == nil || p.ProducerRef == "" {
		return nil
	}
	entry, ok := c.byRef[p.ProducerRef]
	if !ok {
		return nil
	}
	if len(p.OutputSchema) == 0 && entry.OutputSchema != nil {
		raw, err := json.Marshal(entry.OutputSchema)
		if err != nil {
			return fmt.Errorf("catalog: marshaling outputSchema for %q: %w", p.ProducerRef, err)
		}
		p.OutputSchema = raw
	}
	if len(p.InputSchema) == 0 && entry.InputSchema != nil {
		raw, err := json.Marshal(entry.InputSchema)
		if err != nil {
			return fmt.Errorf("catalog: marshaling inputSchema for %q: %w", p.ProducerRef, err)
		}
		p.InputSchema = raw
	}
	if p.Provider == "" {
		p.Provider = entry.Provider
	}
	if p.Model == "" {
		p.Model = entry.Model
	}
	if len(p.SDKMapping) == 0 {
		p.SDKMapping = entry.SDKMapping
	}
	return nil
}
