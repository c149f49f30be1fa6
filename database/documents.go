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

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(document *model.Document) error
	SelectDocument(id int64) (*model.Document, error)
	SelectDocumentByURL(url string) (*model.Document, error)
	DocumentExistsByHash(contentHash string) (bool, error)
	SelectUnprocessedDocuments(limit int) ([]*model.Document, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads the document-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("validate database connection", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// InsertDocument inserts a new document. The URL is globally unique; inserting
// a document whose URL already exists returns an error without writing a row.
func (h *DocumentsDBHandler) InsertDocument(document *model.Document) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6, $7)`,
		document.URL,
		document.Title,
		document.SourceName,
		document.PublishedAt,
		nullableTime(document.FetchedAt),
		document.Content,
		document.ContentHash,
	)

	err := scanDocument(row, document)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by ID
func (h *DocumentsDBHandler) SelectDocument(id int64) (*model.Document, error) {
	document := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document($1)`,
		id,
	)

	err := scanDocument(row, document)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return document, nil
}

// SelectDocumentByURL retrieves a document by its unique URL
func (h *DocumentsDBHandler) SelectDocumentByURL(url string) (*model.Document, error) {
	document := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document_by_url($1)`,
		url,
	)

	err := scanDocument(row, document)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return document, nil
}

// DocumentExistsByHash reports whether any document carries the given content hash
func (h *DocumentsDBHandler) DocumentExistsByHash(contentHash string) (bool, error) {
	var exists bool
	err := h.db.Instance.QueryRow(
		`SELECT document_exists_by_hash($1)`,
		contentHash,
	).Scan(&exists)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return exists, nil
}

// SelectUnprocessedDocuments retrieves documents without any mention,
// most recently fetched first
func (h *DocumentsDBHandler) SelectUnprocessedDocuments(limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_unprocessed_documents($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		document := &model.Document{}
		err := scanDocument(rows, document)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		documents = append(documents, document)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return documents, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, document *model.Document) error {
	var title, sourceName sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&document.ID,
		&document.RID,
		&document.URL,
		&title,
		&sourceName,
		&publishedAt,
		&document.FetchedAt,
		&document.Content,
		&document.ContentHash,
	)
	if err != nil {
		return err
	}

	document.Title = title.String
	document.SourceName = sourceName.String
	if publishedAt.Valid {
		t := publishedAt.Time
		document.PublishedAt = &t
	} else {
		document.PublishedAt = nil
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
