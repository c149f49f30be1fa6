package pipeline

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
	"github.com/aiscope/aiscope/registry"
)

// EntityResolver maps a free-text (name, type) reference to exactly one
// persisted entity, creating it on first sight. The curated registry is
// consulted first; concurrent creation races are arbitrated by the storage
// uniqueness constraints and resolved by re-fetching the winning row.
type EntityResolver struct {
	entities database.EntitiesDBHandlerFunctions

	mu       sync.RWMutex
	registry *registry.Registry
}

// NewEntityResolver creates an entity resolver using the given registry
// snapshot; pass registry.Empty() when no curated registry is configured
func NewEntityResolver(entities database.EntitiesDBHandlerFunctions, reg *registry.Registry) *EntityResolver {
	if reg == nil {
		reg = registry.Empty()
	}
	return &EntityResolver{
		entities: entities,
		registry: reg,
	}
}

// SetRegistry swaps in a freshly loaded registry snapshot. Resolutions in
// flight keep using the snapshot they started with.
func (r *EntityResolver) SetRegistry(reg *registry.Registry) {
	if reg == nil {
		reg = registry.Empty()
	}
	r.mu.Lock()
	r.registry = reg
	r.mu.Unlock()
}

func (r *EntityResolver) snapshot() *registry.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry
}

// Resolve returns the one entity for a (name, type) reference.
// Lookup order: curated registry entry by normalized name or alias, then
// exact normalized (name, type) match, then creation. The name and type of
// an existing entity are never overwritten; registry aliases are merged
// into the existing alias set.
func (r *EntityResolver) Resolve(name string, entityType model.EntityType) (*model.Entity, error) {
	if !entityType.Valid() {
		return nil, helper.NewError("validate entity type", fmt.Errorf("unknown entity type %q", entityType))
	}

	normalized := registry.Normalize(name)
	if normalized == "" {
		return nil, helper.NewError("validate entity name", fmt.Errorf("entity name is empty"))
	}

	if canonical, ok := r.snapshot().Lookup(normalized); ok {
		return r.resolveCanonical(canonical)
	}

	entity, err := r.entities.SelectEntityByName(name, entityType)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select entity by name", err)
	}

	entity = &model.Entity{
		Name: name,
		Type: entityType,
	}
	err = r.entities.InsertEntity(entity)
	if err == nil {
		return entity, nil
	}
	if !isUniqueViolation(err) {
		return nil, helper.NewError("insert entity", err)
	}

	// A concurrent writer won the creation race; return its row
	entity, err = r.entities.SelectEntityByName(name, entityType)
	if err != nil {
		return nil, helper.NewError("re-fetch entity after conflict", err)
	}

	return entity, nil
}

// resolveCanonical resolves through a curated registry hit: the entity is
// keyed by external_id and created with the canonical name and type
func (r *EntityResolver) resolveCanonical(canonical *registry.Canonical) (*model.Entity, error) {
	entity, err := r.entities.SelectEntityByExternalID(canonical.ExternalID)
	if err == nil {
		return r.mergeCanonicalAliases(entity, canonical)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select entity by external id", err)
	}

	externalID := canonical.ExternalID
	entity = &model.Entity{
		ExternalID: &externalID,
		Name:       canonical.Name,
		Type:       canonical.Type,
		Aliases:    model.StringList(canonical.Aliases),
	}
	err = r.entities.InsertEntity(entity)
	if err == nil {
		return entity, nil
	}
	if !isUniqueViolation(err) {
		return nil, helper.NewError("insert entity", err)
	}

	// Either a concurrent writer created the entity under this external_id,
	// or the canonical (name, type) already exists without an external_id
	// because the entity predates its registry entry
	entity, err = r.entities.SelectEntityByExternalID(canonical.ExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		entity, err = r.entities.SelectEntityByName(canonical.Name, canonical.Type)
	}
	if err != nil {
		return nil, helper.NewError("re-fetch entity after conflict", err)
	}

	return r.mergeCanonicalAliases(entity, canonical)
}

func (r *EntityResolver) mergeCanonicalAliases(entity *model.Entity, canonical *registry.Canonical) (*model.Entity, error) {
	missing := false
	for _, alias := range canonical.Aliases {
		if !entity.HasAlias(alias) {
			missing = true
			break
		}
	}
	if !missing {
		return entity, nil
	}

	merged, err := r.entities.MergeEntityAliases(entity.ID, canonical.Aliases)
	if err != nil {
		return nil, helper.NewError("merge entity aliases", err)
	}

	return merged, nil
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (class 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
