package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiscope/aiscope/model"
	"github.com/aiscope/aiscope/registry"
)

func loadTestRegistry(t *testing.T, content string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	reg, err := registry.Load(path)
	require.NoError(t, err, "failed to load registry fixture")
	return reg
}

func TestResolverCreatesAndReuses(t *testing.T) {
	_, entities, _, _ := initHandlers(t)
	resolver := NewEntityResolver(entities, nil)

	name := "Acme AI " + uniqueSuffix()

	t.Run("First resolution creates the entity", func(t *testing.T) {
		entity, err := resolver.Resolve(name, model.EntityTypeCompany)
		assert.NoError(t, err, "Expected Resolve to not return an error")
		require.NotNil(t, entity)
		assert.NotZero(t, entity.ID, "Expected a persisted entity")
		assert.Equal(t, name, entity.Name, "Expected the reference name to be kept")
		assert.Equal(t, model.EntityTypeCompany, entity.Type, "Expected the reference type to be kept")
	})

	t.Run("Repeated resolution returns the same entity", func(t *testing.T) {
		first, err := resolver.Resolve(name, model.EntityTypeCompany)
		require.NoError(t, err)

		second, err := resolver.Resolve(name, model.EntityTypeCompany)
		assert.NoError(t, err)
		assert.Equal(t, first.ID, second.ID, "Expected the same entity on repeated resolution")
	})

	t.Run("Name variants resolve to the same entity", func(t *testing.T) {
		original, err := resolver.Resolve(name, model.EntityTypeCompany)
		require.NoError(t, err)

		variant, err := resolver.Resolve("  "+name+"  ", model.EntityTypeCompany)
		assert.NoError(t, err, "Expected whitespace variant to resolve")
		assert.Equal(t, original.ID, variant.ID, "Expected normalized variant to hit the same entity")
	})

	t.Run("Same name with different type is a different entity", func(t *testing.T) {
		company, err := resolver.Resolve(name, model.EntityTypeCompany)
		require.NoError(t, err)

		product, err := resolver.Resolve(name, model.EntityTypeProduct)
		assert.NoError(t, err)
		assert.NotEqual(t, company.ID, product.ID, "Expected type to be part of the identity")
	})
}

func TestResolverValidation(t *testing.T) {
	_, entities, _, _ := initHandlers(t)
	resolver := NewEntityResolver(entities, nil)

	t.Run("Unknown type fails", func(t *testing.T) {
		_, err := resolver.Resolve("Acme AI", model.EntityType("country"))
		assert.Error(t, err, "Expected error for unknown entity type")
		assert.Contains(t, err.Error(), "unknown entity type", "Expected specific validation error")
	})

	t.Run("Empty name fails", func(t *testing.T) {
		_, err := resolver.Resolve("   ", model.EntityTypeCompany)
		assert.Error(t, err, "Expected error for empty name")
		assert.Contains(t, err.Error(), "entity name is empty", "Expected specific validation error")
	})
}

func TestResolverRegistry(t *testing.T) {
	_, entities, _, _ := initHandlers(t)

	suffix := uniqueSuffix()
	reg := loadTestRegistry(t, `
entities:
  - external_id: openai-`+suffix+`
    name: OpenAI `+suffix+`
    type: company
    aliases:
      - OAI `+suffix+`
`)
	resolver := NewEntityResolver(entities, reg)

	t.Run("Alias resolves to the canonical entity", func(t *testing.T) {
		entity, err := resolver.Resolve("oai "+suffix, model.EntityTypeCompany)
		assert.NoError(t, err, "Expected alias resolution to succeed")
		assert.Equal(t, "OpenAI "+suffix, entity.Name, "Expected the canonical name")
		require.NotNil(t, entity.ExternalID, "Expected the canonical external ID")
		assert.Equal(t, "openai-"+suffix, *entity.ExternalID, "Expected the canonical external ID")
		assert.True(t, entity.HasAlias("OAI "+suffix), "Expected registry aliases on the created entity")
	})

	t.Run("Canonical name and alias hit the same entity", func(t *testing.T) {
		byAlias, err := resolver.Resolve("OAI "+suffix, model.EntityTypeCompany)
		require.NoError(t, err)

		byName, err := resolver.Resolve("openai "+suffix, model.EntityTypeCompany)
		assert.NoError(t, err)
		assert.Equal(t, byAlias.ID, byName.ID, "Expected one entity for all registry forms")
	})

	t.Run("Registry type wins over the reference type", func(t *testing.T) {
		// The reference says person, the registry says company
		entity, err := resolver.Resolve("OAI "+suffix, model.EntityTypePerson)
		assert.NoError(t, err)
		assert.Equal(t, model.EntityTypeCompany, entity.Type, "Expected the curated type")
	})

	t.Run("Swapping the registry affects later resolutions", func(t *testing.T) {
		resolver.SetRegistry(registry.Empty())

		entity, err := resolver.Resolve("OAI "+suffix, model.EntityTypeCompany)
		assert.NoError(t, err, "Expected resolution without registry to fall back to name lookup")
		// Without the registry the alias is just a name, so a new entity appears
		assert.Equal(t, "OAI "+suffix, entity.Name, "Expected the raw reference name")
		assert.Nil(t, entity.ExternalID, "Expected no external ID without the registry")
	})
}

func TestResolverRegistryAdoptsExistingEntity(t *testing.T) {
	_, entities, _, _ := initHandlers(t)

	suffix := uniqueSuffix()
	name := "OpenAI " + suffix

	// The entity predates its registry entry and carries no external ID
	existing := &model.Entity{Name: name, Type: model.EntityTypeCompany}
	require.NoError(t, entities.InsertEntity(existing))

	reg := loadTestRegistry(t, `
entities:
  - external_id: openai-`+suffix+`
    name: `+name+`
    type: company
    aliases:
      - OAI `+suffix+`
`)
	resolver := NewEntityResolver(entities, reg)

	t.Run("Canonical name resolves to the pre-existing row", func(t *testing.T) {
		entity, err := resolver.Resolve(name, model.EntityTypeCompany)
		assert.NoError(t, err, "Expected resolution against the pre-existing entity to succeed")
		require.NotNil(t, entity)
		assert.Equal(t, existing.ID, entity.ID, "Expected the pre-existing row to be returned")
		assert.True(t, entity.HasAlias("OAI "+suffix), "Expected registry aliases to be merged")
	})

	t.Run("Alias also resolves to the pre-existing row", func(t *testing.T) {
		entity, err := resolver.Resolve("oai "+suffix, model.EntityTypeCompany)
		assert.NoError(t, err, "Expected alias resolution against the pre-existing entity to succeed")
		assert.Equal(t, existing.ID, entity.ID, "Expected one entity across all registry forms")
	})
}

func TestResolverCreationRace(t *testing.T) {
	_, entities, _, _ := initHandlers(t)

	name := "Race Corp " + uniqueSuffix()

	// Simulate losing the creation race: another writer inserts the entity
	// between the resolver's miss and its insert. The second resolver call
	// then re-fetches the winning row instead of failing.
	winner := &model.Entity{Name: name, Type: model.EntityTypeCompany}
	require.NoError(t, entities.InsertEntity(winner))

	resolver := NewEntityResolver(entities, nil)
	entity, err := resolver.Resolve(name, model.EntityTypeCompany)
	assert.NoError(t, err, "Expected resolution to succeed against the existing row")
	assert.Equal(t, winner.ID, entity.ID, "Expected the winning row to be returned")
}
