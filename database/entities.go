package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
	loadSql "github.com/aiscope/aiscope/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.Entity) error
	SelectEntity(id int64) (*model.Entity, error)
	SelectEntityByExternalID(externalID string) (*model.Entity, error)
	SelectEntityByName(name string, entityType model.EntityType) (*model.Entity, error)
	SelectEntitiesByType(entityType model.EntityType, limit int) ([]*model.Entity, error)
	MergeEntityAliases(id int64, aliases []string) (*model.Entity, error)
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It loads the entity-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("validate database connection", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates the uniqueness indexes that arbitrate creation races.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity. A uniqueness conflict on external_id or
// the normalized (name, type) pair is returned to the caller, which is
// expected to re-fetch the winning row.
func (h *EntitiesDBHandler) InsertEntity(entity *model.Entity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4)`,
		entity.Name,
		entity.Type,
		entity.ExternalID,
		entity.Aliases,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(id int64) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		id,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByExternalID retrieves an entity by its canonical registry key
func (h *EntitiesDBHandler) SelectEntityByExternalID(externalID string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_external_id($1)`,
		externalID,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByName retrieves an entity by normalized name and type
func (h *EntitiesDBHandler) SelectEntityByName(name string, entityType model.EntityType) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_name($1, $2)`,
		name,
		entityType,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByType retrieves entities by type, ordered by name
func (h *EntitiesDBHandler) SelectEntitiesByType(entityType model.EntityType, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_type($1, $2)`,
		entityType,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// MergeEntityAliases merges new aliases into an entity's alias set.
// Aliases only accumulate; updated_at is touched only when the set grows.
func (h *EntitiesDBHandler) MergeEntityAliases(id int64, aliases []string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM merge_entity_aliases($1, $2)`,
		id,
		model.StringList(aliases),
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

func scanEntity(row rowScanner, entity *model.Entity) error {
	var externalID sql.NullString

	err := row.Scan(
		&entity.ID,
		&externalID,
		&entity.Name,
		&entity.Type,
		&entity.Aliases,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if externalID.Valid {
		s := externalID.String
		entity.ExternalID = &s
	} else {
		entity.ExternalID = nil
	}

	return nil
}
