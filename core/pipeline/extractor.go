package pipeline

import (
	"context"
	"log/slog"

	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/llm"
	"github.com/aiscope/aiscope/model"
)

const maxExtractionTokens = 2048

const extractionPrompt = `You are an expert analyst of the AI startup ecosystem. Extract discrete, structured events
about a small set of AI companies from the given article.

Return STRICT JSON with the following schema (no additional text):

{
  "events": [
    {
      "type": "funding" | "launch" | "hire" | "partnership" | "acquisition",
      "occurred_at": "ISO 8601 date or null",
      "entities": [
        {
          "name": "string",
          "type": "company" | "person" | "product" | "investor",
          "role": "string or null"
        }
      ],
      "attributes": {
        "amount_usd": number or null,
        "round": "string or null",
        "role": "string or null",
        "product_name": "string or null",
        "summary": "short natural language summary of the event or null"
      },
      "confidence": number between 0 and 1 or null,
      "source_urls": ["string"],
      "evidence_quotes": ["short quoted spans from the article"]
    }
  ]
}

Only include high-confidence, material events related to AI companies.`

// EventExtractor turns one document's text into zero or more schema-valid
// candidate events through a text-generation call
type EventExtractor struct {
	invoker llm.Invoker
	log     *slog.Logger
}

// NewEventExtractor creates an event extractor using the given invoker
func NewEventExtractor(invoker llm.Invoker, logger *slog.Logger) *EventExtractor {
	return &EventExtractor{
		invoker: invoker,
		log:     logger,
	}
}

// Extract invokes the model on the document text and parses the response
// into candidate events. Output that still parses into a known alternate
// envelope is normalized; output that cannot be interpreted at all yields
// zero events rather than an error. An invoker error (retry budget
// exhausted) fails the whole document so a future run can retry it.
// The source URL is added to every candidate's source_urls set.
func (e *EventExtractor) Extract(ctx context.Context, content string, sourceURL string) (*model.ExtractionResult, error) {
	prompt := extractionPrompt + "\n\nARTICLE:\n" + content + "\n"

	text, err := e.invoker.Invoke(ctx, prompt, maxExtractionTokens)
	if err != nil {
		return nil, helper.NewError("invoke extraction model", err)
	}

	result, err := model.DecodeExtractionResult([]byte(text))
	if err != nil {
		e.log.Warn("Discarding unparsable model output",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return &model.ExtractionResult{}, nil
	}

	if sourceURL != "" {
		for i := range result.Events {
			result.Events[i].AddSourceURL(sourceURL)
		}
	}

	return result, nil
}
