// Package registry holds the curated alias registry: an immutable snapshot
// mapping normalized entity names and aliases to canonical registry entries.
// The entity resolver consults it before falling back to name/type lookup.
// A snapshot is never mutated after construction; reloading builds a new one.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
)

// Canonical is one curated registry entry
type Canonical struct {
	ExternalID string           `yaml:"external_id"`
	Name       string           `yaml:"name"`
	Type       model.EntityType `yaml:"type"`
	Category   string           `yaml:"category"`
	Aliases    []string         `yaml:"aliases"`
}

type registryFile struct {
	Entities []Canonical `yaml:"entities"`
}

// Registry is an immutable snapshot of the curated registry
type Registry struct {
	byAlias    map[string]*Canonical
	categories map[string]string
}

// Normalize produces the lookup key for a name reference: trimmed,
// lowercased, internal whitespace collapsed to single spaces
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Empty returns a registry with no entries; resolution then always falls
// back to name/type lookup
func Empty() *Registry {
	return &Registry{
		byAlias:    map[string]*Canonical{},
		categories: map[string]string{},
	}
}

// Load reads a registry snapshot from a YAML file. Both the canonical name
// and every alias are indexed under their normalized form.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read registry file", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, helper.NewError("parse registry file", err)
	}

	registry := Empty()
	for i := range file.Entities {
		entry := &file.Entities[i]
		if entry.ExternalID == "" || entry.Name == "" {
			return nil, helper.NewError("validate registry entry", fmt.Errorf("registry entry %d is missing external_id or name", i))
		}
		if !entry.Type.Valid() {
			return nil, helper.NewError("validate registry entry", fmt.Errorf("registry entry %q has unknown type %q", entry.ExternalID, entry.Type))
		}

		registry.byAlias[Normalize(entry.Name)] = entry
		for _, alias := range entry.Aliases {
			registry.byAlias[Normalize(alias)] = entry
		}
		if entry.Category != "" {
			registry.categories[entry.ExternalID] = entry.Category
		}
	}

	return registry, nil
}

// Lookup returns the canonical entry for a normalized name or alias
func (r *Registry) Lookup(normalized string) (*Canonical, bool) {
	entry, ok := r.byAlias[normalized]
	return entry, ok
}

// Category returns the display category for an external ID. Categories are
// configuration data, not derived from entity names.
func (r *Registry) Category(externalID string) (string, bool) {
	category, ok := r.categories[externalID]
	return category, ok
}

// Len returns the number of distinct indexed names and aliases
func (r *Registry) Len() int {
	return len(r.byAlias)
}
