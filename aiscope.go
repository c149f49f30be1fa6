package aiscope

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aiscope/aiscope/api"
	"github.com/aiscope/aiscope/core/pipeline"
	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/ingestion"
	"github.com/aiscope/aiscope/llm"
	"github.com/aiscope/aiscope/model"
	"github.com/aiscope/aiscope/registry"
	loadSql "github.com/aiscope/aiscope/sql"
)

// Default batch sizes for the pipeline jobs
const (
	defaultProcessLimit  = 50
	defaultClassifyLimit = 100
	briefingWindowHours  = 24
)

// AIScope provides a unified interface to the fact pipeline: database
// handlers, ingestion, extraction, classification and briefing generation
type AIScope struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Entities  *database.EntitiesDBHandler
	Events    *database.EventsDBHandler
	Briefings *database.BriefingsDBHandler

	Fetcher    *ingestion.Fetcher
	Resolver   *pipeline.EntityResolver
	Extractor  *pipeline.EventExtractor
	Persister  *pipeline.FactPersister
	Classifier *pipeline.NoveltyClassifier
	Composer   *pipeline.BriefingComposer

	// Logging
	log *slog.Logger
}

// New creates a new AIScope instance with all handlers initialized.
// The invoker is the text-generation backend used for extraction and
// briefing composition, typically an llm.BedrockClient.
func New(config *helper.DatabaseConfiguration, invoker llm.Invoker) (*AIScope, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("aiscope", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (the ledger tables reference
	// documents and entities). force=false to not reload existing functions.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	events, err := database.NewEventsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create events handler", err)
	}

	briefings, err := database.NewBriefingsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create briefings handler", err)
	}

	resolver := pipeline.NewEntityResolver(entities, registry.Empty())
	extractor := pipeline.NewEventExtractor(invoker, logger)

	return &AIScope{
		DB:         db,
		Documents:  documents,
		Entities:   entities,
		Events:     events,
		Briefings:  briefings,
		Fetcher:    ingestion.NewFetcher(documents, logger),
		Resolver:   resolver,
		Extractor:  extractor,
		Persister:  pipeline.NewFactPersister(documents, events, extractor, resolver, logger),
		Classifier: pipeline.NewNoveltyClassifier(events, logger),
		Composer:   pipeline.NewBriefingComposer(events, briefings, invoker, logger),
		log:        logger,
	}, nil
}

// Close closes the database connection
func (a *AIScope) Close() error {
	if a.DB != nil && a.DB.Instance != nil {
		return a.DB.Instance.Close()
	}
	return nil
}

// UseRegistry loads a curated registry snapshot from a YAML file and makes
// the resolver use it for subsequent resolutions
func (a *AIScope) UseRegistry(path string) error {
	reg, err := registry.Load(path)
	if err != nil {
		return helper.NewError("load registry", err)
	}

	a.Resolver.SetRegistry(reg)
	a.log.Info("Loaded entity registry", slog.Int("num_aliases", reg.Len()))

	return nil
}

// FetchSources fetches all feeds from a sources YAML file and stores the
// unseen items as documents. Returns the number of documents stored.
func (a *AIScope) FetchSources(ctx context.Context, path string) (int, error) {
	sources, err := ingestion.LoadSources(path)
	if err != nil {
		return 0, helper.NewError("load sources", err)
	}

	return a.Fetcher.FetchAll(ctx, sources)
}

// ProcessUnprocessedDocuments extracts and persists events for documents
// without mentions. Returns the number of events created.
func (a *AIScope) ProcessUnprocessedDocuments(ctx context.Context) (int, error) {
	return a.Persister.ProcessUnprocessed(ctx, defaultProcessLimit)
}

// ClassifyRecentEvents appends novelty labels to the most recently recorded
// events. Returns the number of labels created.
func (a *AIScope) ClassifyRecentEvents(ctx context.Context) (int, error) {
	return a.Classifier.ClassifyRecent(ctx, defaultClassifyLimit)
}

// ComposeBriefing generates and persists a briefing over an explicit
// recorded-at window
func (a *AIScope) ComposeBriefing(ctx context.Context, windowStart, windowEnd time.Time) (*model.Briefing, error) {
	return a.Composer.Compose(ctx, windowStart, windowEnd)
}

// ComposeDailyBriefing generates a briefing over the last 24 hours
func (a *AIScope) ComposeDailyBriefing(ctx context.Context) (*model.Briefing, error) {
	return a.Composer.ComposeRecent(ctx, briefingWindowHours)
}

// APIServer creates the read API server over this instance's handlers
func (a *AIScope) APIServer() *api.Server {
	return api.NewServer(a.Entities, a.Events, a.Briefings, a.log)
}
