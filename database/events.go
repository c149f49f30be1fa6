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

// ResolvedRole links an already-resolved entity to an event being persisted
type ResolvedRole struct {
	EntityID int64
	Role     *string
}

// EventFacts is the full set of ledger rows for one candidate event:
// the event itself plus one role and one mention per resolved entity
type EventFacts struct {
	Type       model.EventType
	OccurredAt *time.Time
	Attributes model.EventAttributes
	Confidence *float64
	Roles      []ResolvedRole
}

// EventsDBHandlerFunctions defines the interface for event-ledger database operations.
type EventsDBHandlerFunctions interface {
	InsertDocumentFacts(ctx context.Context, documentID int64, facts []EventFacts) ([]*model.Event, error)
	SelectEvent(id int64) (*model.Event, error)
	DocumentHasMentions(documentID int64) (bool, error)
	CountMentionsForDocument(documentID int64) (int64, error)
	SelectRecentEvents(limit int) ([]*model.Event, error)
	SelectSimilarEvents(excludeID int64, eventType model.EventType, occurredFrom, occurredTo time.Time) ([]*model.Event, error)
	InsertNoveltyLabel(label *model.NoveltyLabel) error
	SelectLatestNoveltyLabel(eventID int64) (*model.NoveltyLabel, error)
	SelectEventsInWindow(recordedFrom, recordedTo time.Time) ([]*model.Event, error)
	SelectEventsForEntity(entityID int64, limit int) ([]*model.Event, error)
	SelectEventsGlobal(limit int) ([]*model.Event, error)
	SelectEventParticipants(eventID int64) ([]*model.EventParticipant, error)
	SelectEventSourceURL(eventID int64) (string, error)
}

// EventsDBHandler handles the append-only event ledger: events, entity
// roles, mentions and novelty labels
type EventsDBHandler struct {
	db *helper.Database
}

// NewEventsDBHandler creates a new event-ledger database handler.
// It loads the event-related SQL functions and creates the tables.
// The entities and documents handlers must be created first because the
// ledger tables reference their tables.
func NewEventsDBHandler(db *helper.Database, force bool) (*EventsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("validate database connection", fmt.Errorf("database connection is nil"))
	}

	eventsDbHandler := &EventsDBHandler{
		db: db,
	}

	err := loadSql.LoadEventsSql(eventsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load events sql", err)
	}

	err = eventsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EventsDBHandler")

	return eventsDbHandler, nil
}

// CreateTable creates the ledger tables in the database.
// If the tables already exist, it does not create them again.
func (h *EventsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_events();`)
	if err != nil {
		log.Panicf("error initializing event ledger tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created event ledger tables")

	return nil
}

// InsertDocumentFacts writes the full set of ledger rows for one document in
// a single transaction: every event, one role and one mention per resolved
// entity. Either all rows commit or none do, so readers never observe a
// dangling event without roles or mentions.
func (h *EventsDBHandler) InsertDocumentFacts(ctx context.Context, documentID int64, facts []EventFacts) ([]*model.Event, error) {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	events := make([]*model.Event, 0, len(facts))
	for _, fact := range facts {
		event := &model.Event{}
		row := tx.QueryRowContext(
			ctx,
			`SELECT * FROM insert_event($1, $2, $3, $4)`,
			fact.Type,
			fact.OccurredAt,
			fact.Attributes,
			fact.Confidence,
		)
		if err := scanEvent(row, event); err != nil {
			return nil, helper.NewError("scan event", err)
		}

		for _, role := range fact.Roles {
			_, err := tx.ExecContext(
				ctx,
				`SELECT * FROM insert_event_entity_role($1, $2, $3)`,
				event.ID,
				role.EntityID,
				role.Role,
			)
			if err != nil {
				return nil, helper.NewError("insert event entity role", err)
			}

			_, err = tx.ExecContext(
				ctx,
				`SELECT * FROM insert_mention($1, $2, $3, $4)`,
				documentID,
				role.EntityID,
				event.ID,
				nil,
			)
			if err != nil {
				return nil, helper.NewError("insert mention", err)
			}
		}

		events = append(events, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, helper.NewError("commit transaction", err)
	}

	return events, nil
}

// SelectEvent retrieves an event by ID
func (h *EventsDBHandler) SelectEvent(id int64) (*model.Event, error) {
	event := &model.Event{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_event($1)`,
		id,
	)

	err := scanEvent(row, event)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return event, nil
}

// DocumentHasMentions reports whether any mention references the document.
// This is the idempotency gate of the fact persister.
func (h *EventsDBHandler) DocumentHasMentions(documentID int64) (bool, error) {
	var has bool
	err := h.db.Instance.QueryRow(
		`SELECT document_has_mentions($1)`,
		documentID,
	).Scan(&has)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return has, nil
}

// CountMentionsForDocument counts the mentions referencing a document
func (h *EventsDBHandler) CountMentionsForDocument(documentID int64) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(
		`SELECT count_mentions_for_document($1)`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return count, nil
}

// SelectRecentEvents retrieves the most recently recorded events
func (h *EventsDBHandler) SelectRecentEvents(limit int) ([]*model.Event, error) {
	return h.queryEvents(`SELECT * FROM select_recent_events($1)`, limit)
}

// SelectSimilarEvents retrieves same-type events whose occurred_at falls in
// the given window, excluding the event itself
func (h *EventsDBHandler) SelectSimilarEvents(excludeID int64, eventType model.EventType, occurredFrom, occurredTo time.Time) ([]*model.Event, error) {
	return h.queryEvents(
		`SELECT * FROM select_similar_events($1, $2, $3, $4)`,
		excludeID,
		eventType,
		occurredFrom,
		occurredTo,
	)
}

// InsertNoveltyLabel appends one novelty label row. Labels are never
// updated; history is preserved across classifier runs.
func (h *EventsDBHandler) InsertNoveltyLabel(label *model.NoveltyLabel) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_novelty_label($1, $2, $3)`,
		label.EventID,
		label.Label,
		nullableTime(label.ComputedAt),
	)

	err := row.Scan(
		&label.ID,
		&label.EventID,
		&label.Label,
		&label.ComputedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectLatestNoveltyLabel retrieves the most recently computed label for an
// event; this is the read-side "current" label
func (h *EventsDBHandler) SelectLatestNoveltyLabel(eventID int64) (*model.NoveltyLabel, error) {
	label := &model.NoveltyLabel{}
	err := h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_novelty_label($1)`,
		eventID,
	).Scan(
		&label.ID,
		&label.EventID,
		&label.Label,
		&label.ComputedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return label, nil
}

// SelectEventsInWindow retrieves events recorded inside the closed window
// [recordedFrom, recordedTo]
func (h *EventsDBHandler) SelectEventsInWindow(recordedFrom, recordedTo time.Time) ([]*model.Event, error) {
	return h.queryEvents(
		`SELECT * FROM select_events_in_window($1, $2)`,
		recordedFrom,
		recordedTo,
	)
}

// SelectEventsForEntity retrieves the events an entity participates in
func (h *EventsDBHandler) SelectEventsForEntity(entityID int64, limit int) ([]*model.Event, error) {
	return h.queryEvents(`SELECT * FROM select_events_for_entity($1, $2)`, entityID, limit)
}

// SelectEventsGlobal retrieves the latest events across all entities
func (h *EventsDBHandler) SelectEventsGlobal(limit int) ([]*model.Event, error) {
	return h.queryEvents(`SELECT * FROM select_events_global($1)`, limit)
}

// SelectEventParticipants retrieves the entities participating in an event
// together with their roles
func (h *EventsDBHandler) SelectEventParticipants(eventID int64) ([]*model.EventParticipant, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_event_participants($1)`,
		eventID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var participants []*model.EventParticipant
	for rows.Next() {
		participant := &model.EventParticipant{}
		var role sql.NullString
		err := rows.Scan(
			&participant.EntityID,
			&participant.Name,
			&participant.Type,
			&role,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		if role.Valid {
			s := role.String
			participant.Role = &s
		}

		participants = append(participants, participant)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return participants, nil
}

// SelectEventSourceURL retrieves the first known source URL for an event
// through its mention provenance; empty when the event has no mentions
func (h *EventsDBHandler) SelectEventSourceURL(eventID int64) (string, error) {
	var url sql.NullString
	err := h.db.Instance.QueryRow(
		`SELECT select_event_source_url($1)`,
		eventID,
	).Scan(&url)
	if err != nil {
		return "", helper.NewError("scan", err)
	}

	return url.String, nil
}

func (h *EventsDBHandler) queryEvents(query string, args ...interface{}) ([]*model.Event, error) {
	rows, err := h.db.Instance.Query(query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event := &model.Event{}
		err := scanEvent(rows, event)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return events, nil
}

func scanEvent(row rowScanner, event *model.Event) error {
	var occurredAt sql.NullTime
	var confidence sql.NullFloat64

	err := row.Scan(
		&event.ID,
		&event.RID,
		&event.Type,
		&occurredAt,
		&event.Attributes,
		&confidence,
		&event.RecordedAt,
	)
	if err != nil {
		return err
	}

	if occurredAt.Valid {
		t := occurredAt.Time
		event.OccurredAt = &t
	} else {
		event.OccurredAt = nil
	}
	if confidence.Valid {
		c := confidence.Float64
		event.Confidence = &c
	} else {
		event.Confidence = nil
	}

	return nil
}
