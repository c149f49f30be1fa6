package pipeline

import (
	"context"
	"log/slog"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
)

// FactPersister writes a document's candidate events to the ledger exactly
// once. The idempotency gate is mention existence: a document with any
// mention is never reprocessed. All rows for a document commit in one
// transaction or not at all.
type FactPersister struct {
	documents database.DocumentsDBHandlerFunctions
	events    database.EventsDBHandlerFunctions
	extractor *EventExtractor
	resolver  *EntityResolver
	log       *slog.Logger
}

// NewFactPersister creates a fact persister
func NewFactPersister(
	documents database.DocumentsDBHandlerFunctions,
	events database.EventsDBHandlerFunctions,
	extractor *EventExtractor,
	resolver *EntityResolver,
	logger *slog.Logger,
) *FactPersister {
	return &FactPersister{
		documents: documents,
		events:    events,
		extractor: extractor,
		resolver:  resolver,
		log:       logger,
	}
}

// PersistDocument extracts and persists the events of one document.
// Returns the created events, or nil when the document was already
// processed. Candidate events without any entity reference are discarded;
// when nothing persistable remains no rows are written and the document
// stays unprocessed. On any error nothing is written for this document.
func (p *FactPersister) PersistDocument(ctx context.Context, document *model.Document) ([]*model.Event, error) {
	processed, err := p.events.DocumentHasMentions(document.ID)
	if err != nil {
		return nil, helper.NewError("check idempotency gate", err)
	}
	if processed {
		return nil, nil
	}

	result, err := p.extractor.Extract(ctx, document.Content, document.URL)
	if err != nil {
		return nil, helper.NewError("extract events", err)
	}
	if len(result.Events) == 0 {
		return nil, nil
	}

	facts := make([]database.EventFacts, 0, len(result.Events))
	for _, extracted := range result.Events {
		// An event without a single resolvable entity would be a dangling
		// row with no roles and no mentions, leaving the gate open
		if len(extracted.Entities) == 0 {
			p.log.Warn("Discarding extracted event without entities",
				slog.Int64("document_id", document.ID),
				slog.String("event_type", string(extracted.Type)),
			)
			continue
		}

		roles := make([]database.ResolvedRole, 0, len(extracted.Entities))
		for _, ref := range extracted.Entities {
			entity, err := p.resolver.Resolve(ref.Name, ref.Type)
			if err != nil {
				return nil, helper.NewError("resolve entity", err)
			}
			roles = append(roles, database.ResolvedRole{
				EntityID: entity.ID,
				Role:     ref.Role,
			})
		}

		facts = append(facts, database.EventFacts{
			Type:       extracted.Type,
			OccurredAt: extracted.OccurredAtTime(),
			Attributes: extracted.Attributes.ForType(extracted.Type),
			Confidence: extracted.Confidence,
			Roles:      roles,
		})
	}

	if len(facts) == 0 {
		return nil, nil
	}

	events, err := p.events.InsertDocumentFacts(ctx, document.ID, facts)
	if err != nil {
		return nil, helper.NewError("persist document facts", err)
	}

	return events, nil
}

// ProcessUnprocessed runs extraction and persistence for documents without
// mentions, most recently fetched first, up to limit. Each document commits
// on its own; a failing document is logged and does not block the rest of
// the batch. Returns the number of events created.
func (p *FactPersister) ProcessUnprocessed(ctx context.Context, limit int) (int, error) {
	documents, err := p.documents.SelectUnprocessedDocuments(limit)
	if err != nil {
		return 0, helper.NewError("select unprocessed documents", err)
	}

	created := 0
	for _, document := range documents {
		events, err := p.PersistDocument(ctx, document)
		if err != nil {
			p.log.Error("Failed to process document",
				slog.Int64("document_id", document.ID),
				slog.String("url", document.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		created += len(events)
	}

	return created, nil
}
