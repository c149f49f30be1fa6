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

// BriefingsDBHandlerFunctions defines the interface for Briefings database operations.
type BriefingsDBHandlerFunctions interface {
	InsertBriefing(briefing *model.Briefing) error
	SelectBriefing(id int64) (*model.Briefing, error)
	SelectLatestBriefing() (*model.Briefing, error)
}

// BriefingsDBHandler handles briefing-related database operations
type BriefingsDBHandler struct {
	db *helper.Database
}

// NewBriefingsDBHandler creates a new briefings database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewBriefingsDBHandler(db *helper.Database, force bool) (*BriefingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("validate database connection", fmt.Errorf("database connection is nil"))
	}

	briefingsDbHandler := &BriefingsDBHandler{
		db: db,
	}

	err := loadSql.LoadBriefingsSql(briefingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load briefings sql", err)
	}

	err = briefingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized BriefingsDBHandler")

	return briefingsDbHandler, nil
}

// CreateTable creates the 'briefings' table in the database.
// If the table already exists, it does not create it again.
func (h *BriefingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_briefings();`)
	if err != nil {
		log.Panicf("error initializing briefings table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table briefings")

	return nil
}

// InsertBriefing inserts a new briefing. Briefings are never updated; a new
// window always produces a new row.
func (h *BriefingsDBHandler) InsertBriefing(briefing *model.Briefing) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_briefing($1, $2, $3, $4, $5)`,
		nullableTime(briefing.GeneratedAt),
		briefing.WindowStart,
		briefing.WindowEnd,
		briefing.ContentMarkdown,
		briefing.RawModelOutput,
	)

	err := scanBriefing(row, briefing)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectBriefing retrieves a briefing by ID
func (h *BriefingsDBHandler) SelectBriefing(id int64) (*model.Briefing, error) {
	briefing := &model.Briefing{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_briefing($1)`,
		id,
	)

	err := scanBriefing(row, briefing)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return briefing, nil
}

// SelectLatestBriefing retrieves the most recently generated briefing
func (h *BriefingsDBHandler) SelectLatestBriefing() (*model.Briefing, error) {
	briefing := &model.Briefing{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_briefing()`,
	)

	err := scanBriefing(row, briefing)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return briefing, nil
}

func scanBriefing(row rowScanner, briefing *model.Briefing) error {
	var rawOutput sql.NullString

	err := row.Scan(
		&briefing.ID,
		&briefing.RID,
		&briefing.GeneratedAt,
		&briefing.WindowStart,
		&briefing.WindowEnd,
		&briefing.ContentMarkdown,
		&rawOutput,
	)
	if err != nil {
		return err
	}

	briefing.RawModelOutput = rawOutput.String

	return nil
}
