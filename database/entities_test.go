package database

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiscope/aiscope/model"
)

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, entitiesDbHandler, "Expected NewEntitiesDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating EntitiesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEntitiesInsert(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Insert entity", func(t *testing.T) {
		entity := &model.Entity{
			Name:    "Acme AI " + uniqueSuffix(),
			Type:    model.EntityTypeCompany,
			Aliases: model.StringList{"Acme"},
		}

		err := entitiesDbHandler.InsertEntity(entity)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotZero(t, entity.ID, "Expected inserted entity to have an ID")
		assert.Nil(t, entity.ExternalID, "Expected no external ID")
		assert.Equal(t, model.StringList{"Acme"}, entity.Aliases, "Expected aliases to round-trip")
	})

	t.Run("Insert entity with external ID", func(t *testing.T) {
		externalID := "acme-" + uniqueSuffix()
		entity := &model.Entity{
			ExternalID: &externalID,
			Name:       "Acme AI " + uniqueSuffix(),
			Type:       model.EntityTypeCompany,
		}

		err := entitiesDbHandler.InsertEntity(entity)
		assert.NoError(t, err)
		require.NotNil(t, entity.ExternalID, "Expected external ID to round-trip")
		assert.Equal(t, externalID, *entity.ExternalID, "Expected external ID to match")
	})

	t.Run("Duplicate normalized name and type is a unique violation", func(t *testing.T) {
		name := "Unique Labs " + uniqueSuffix()
		first := &model.Entity{Name: name, Type: model.EntityTypeCompany}
		err := entitiesDbHandler.InsertEntity(first)
		require.NoError(t, err)

		// Same name modulo case and spacing, same type
		second := &model.Entity{Name: "  " + name + "  ", Type: model.EntityTypeCompany}
		err = entitiesDbHandler.InsertEntity(second)
		assert.Error(t, err, "Expected unique violation for duplicate normalized name")

		var pqErr *pq.Error
		require.ErrorAs(t, err, &pqErr, "Expected a pq error")
		assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code, "Expected unique violation code")
	})

	t.Run("Same name with different type is allowed", func(t *testing.T) {
		name := "Ambiguous " + uniqueSuffix()
		company := &model.Entity{Name: name, Type: model.EntityTypeCompany}
		require.NoError(t, entitiesDbHandler.InsertEntity(company))

		product := &model.Entity{Name: name, Type: model.EntityTypeProduct}
		err := entitiesDbHandler.InsertEntity(product)
		assert.NoError(t, err, "Expected same name under a different type to be allowed")
	})
}

func TestEntitiesSelect(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	externalID := "openai-" + uniqueSuffix()
	entity := &model.Entity{
		ExternalID: &externalID,
		Name:       "OpenAI " + uniqueSuffix(),
		Type:       model.EntityTypeCompany,
	}
	require.NoError(t, entitiesDbHandler.InsertEntity(entity))

	t.Run("Select entity by ID", func(t *testing.T) {
		retrieved, err := entitiesDbHandler.SelectEntity(entity.ID)
		assert.NoError(t, err)
		assert.Equal(t, entity.Name, retrieved.Name, "Expected names to match")
	})

	t.Run("Select entity by external ID", func(t *testing.T) {
		retrieved, err := entitiesDbHandler.SelectEntityByExternalID(externalID)
		assert.NoError(t, err)
		assert.Equal(t, entity.ID, retrieved.ID, "Expected IDs to match")
	})

	t.Run("Select entity by name is normalization-insensitive", func(t *testing.T) {
		retrieved, err := entitiesDbHandler.SelectEntityByName("  "+entity.Name+"  ", model.EntityTypeCompany)
		assert.NoError(t, err, "Expected lookup with extra whitespace to hit")
		assert.Equal(t, entity.ID, retrieved.ID, "Expected IDs to match")
	})

	t.Run("Select entity by name misses on wrong type", func(t *testing.T) {
		_, err := entitiesDbHandler.SelectEntityByName(entity.Name, model.EntityTypePerson)
		assert.Error(t, err, "Expected miss for wrong type")
		assert.ErrorIs(t, err, sql.ErrNoRows, "Expected sql.ErrNoRows for wrong type")
	})

	t.Run("Select entities by type", func(t *testing.T) {
		entities, err := entitiesDbHandler.SelectEntitiesByType(model.EntityTypeCompany, 1000)
		assert.NoError(t, err)

		found := false
		for _, e := range entities {
			if e.ID == entity.ID {
				found = true
			}
		}
		assert.True(t, found, "Expected inserted entity in the type listing")
	})
}

func TestMergeEntityAliases(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	entity := &model.Entity{
		Name:    "Anthropic " + uniqueSuffix(),
		Type:    model.EntityTypeCompany,
		Aliases: model.StringList{"Anthropic PBC"},
	}
	require.NoError(t, entitiesDbHandler.InsertEntity(entity))

	t.Run("Merging new aliases grows the set", func(t *testing.T) {
		merged, err := entitiesDbHandler.MergeEntityAliases(entity.ID, []string{"Anthropic AI", "Anthropic PBC"})
		assert.NoError(t, err, "Expected MergeEntityAliases to not return an error")
		assert.ElementsMatch(t, []string{"Anthropic PBC", "Anthropic AI"}, []string(merged.Aliases), "Expected union of alias sets")
		assert.True(t, merged.UpdatedAt.After(entity.UpdatedAt) || merged.UpdatedAt.Equal(entity.UpdatedAt), "Expected updated_at to not go backwards")
	})

	t.Run("Merging known aliases is a no-op", func(t *testing.T) {
		before, err := entitiesDbHandler.SelectEntity(entity.ID)
		require.NoError(t, err)

		merged, err := entitiesDbHandler.MergeEntityAliases(entity.ID, []string{"Anthropic AI"})
		assert.NoError(t, err)
		assert.ElementsMatch(t, []string(before.Aliases), []string(merged.Aliases), "Expected alias set to be unchanged")
		assert.Equal(t, before.UpdatedAt, merged.UpdatedAt, "Expected updated_at to be untouched when nothing changes")
	})

	t.Run("Merging into a missing entity returns no row", func(t *testing.T) {
		_, err := entitiesDbHandler.MergeEntityAliases(-1, []string{"anything"})
		assert.Error(t, err, "Expected error for missing entity")
		assert.ErrorIs(t, err, sql.ErrNoRows, "Expected sql.ErrNoRows for missing entity")
	})
}
