package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed events.sql
var eventsSQL string

//go:embed briefings.sql
var briefingsSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_document_by_url",
	"document_exists_by_hash",
	"select_unprocessed_documents",
}

var EntitiesFunctions = []string{
	"normalize_entity_name",
	"init_entities",
	"insert_entity",
	"select_entity",
	"select_entity_by_external_id",
	"select_entity_by_name",
	"select_entities_by_type",
	"merge_entity_aliases",
}

var EventsFunctions = []string{
	"init_events",
	"insert_event",
	"insert_event_entity_role",
	"insert_mention",
	"select_event",
	"document_has_mentions",
	"count_mentions_for_document",
	"select_recent_events",
	"select_similar_events",
	"insert_novelty_label",
	"select_latest_novelty_label",
	"select_events_in_window",
	"select_events_for_entity",
	"select_events_global",
	"select_event_participants",
	"select_event_source_url",
}

var BriefingsFunctions = []string{
	"init_briefings",
	"insert_briefing",
	"select_briefing",
	"select_latest_briefing",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadGroup(db, force, "documents", documentsSQL, DocumentsFunctions)
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadGroup(db, force, "entities", entitiesSQL, EntitiesFunctions)
}

// LoadEventsSql loads event-ledger SQL functions
func LoadEventsSql(db *sql.DB, force bool) error {
	return loadGroup(db, force, "events", eventsSQL, EventsFunctions)
}

// LoadBriefingsSql loads briefing-related SQL functions
func LoadBriefingsSql(db *sql.DB, force bool) error {
	return loadGroup(db, force, "briefings", briefingsSQL, BriefingsFunctions)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	if err := LoadEventsSql(db, force); err != nil {
		return err
	}

	if err := LoadBriefingsSql(db, force); err != nil {
		return err
	}

	return nil
}

func loadGroup(db *sql.DB, force bool, name string, groupSQL string, functions []string) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(groupSQL)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
