package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/llm"
	"github.com/aiscope/aiscope/model"
)

const maxBriefingTokens = 1024

const briefingPrompt = `You are generating a concise daily briefing about developments in the AI startup ecosystem.

Given the following structured events, write 5-10 bullet points in Markdown.
Each bullet should:
  - Describe what happened.
  - Explain briefly why it matters in system-level terms (trajectory, strategy, ecosystem impact).
  - Mention the companies involved.

EVENTS (JSON):
`

// markdownFields are the response field names tried in order when
// extracting the Markdown body from a model response
var markdownFields = []string{"briefing_markdown", "text"}

// briefingEvent is the serialized form of an event inside the prompt
type briefingEvent struct {
	ID         int64                 `json:"id"`
	Type       model.EventType       `json:"type"`
	OccurredAt *time.Time            `json:"occurred_at"`
	Attributes model.EventAttributes `json:"attributes"`
	Confidence *float64              `json:"confidence"`
}

// BriefingComposer produces a derived Markdown digest over a recorded-at
// window. It only reads the ledger and appends briefing rows; it never
// mutates events.
type BriefingComposer struct {
	events    database.EventsDBHandlerFunctions
	briefings database.BriefingsDBHandlerFunctions
	invoker   llm.Invoker
	log       *slog.Logger
}

// NewBriefingComposer creates a briefing composer
func NewBriefingComposer(
	events database.EventsDBHandlerFunctions,
	briefings database.BriefingsDBHandlerFunctions,
	invoker llm.Invoker,
	logger *slog.Logger,
) *BriefingComposer {
	return &BriefingComposer{
		events:    events,
		briefings: briefings,
		invoker:   invoker,
		log:       logger,
	}
}

// Compose generates and persists a briefing over the events recorded in
// [windowStart, windowEnd]. When no events qualify it returns nil and
// persists nothing. A new call over the same window creates another
// briefing row, never a replacement.
func (c *BriefingComposer) Compose(ctx context.Context, windowStart, windowEnd time.Time) (*model.Briefing, error) {
	events, err := c.events.SelectEventsInWindow(windowStart, windowEnd)
	if err != nil {
		return nil, helper.NewError("select events in window", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	serializable := make([]briefingEvent, 0, len(events))
	for _, event := range events {
		serializable = append(serializable, briefingEvent{
			ID:         event.ID,
			Type:       event.Type,
			OccurredAt: event.OccurredAt,
			Attributes: event.Attributes,
			Confidence: event.Confidence,
		})
	}

	eventsJSON, err := json.MarshalIndent(serializable, "", "  ")
	if err != nil {
		return nil, helper.NewError("marshal events", err)
	}

	raw, err := c.invoker.Invoke(ctx, briefingPrompt+string(eventsJSON)+"\n", maxBriefingTokens)
	if err != nil {
		return nil, helper.NewError("invoke briefing model", err)
	}

	briefing := &model.Briefing{
		GeneratedAt:     windowEnd,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		ContentMarkdown: extractMarkdown(raw),
		RawModelOutput:  raw,
	}

	err = c.briefings.InsertBriefing(briefing)
	if err != nil {
		return nil, helper.NewError("insert briefing", err)
	}

	c.log.Info("Composed briefing",
		slog.Int64("briefing_id", briefing.ID),
		slog.Int("num_events", len(events)),
	)

	return briefing, nil
}

// ComposeRecent composes a briefing over the last given number of hours,
// ending now
func (c *BriefingComposer) ComposeRecent(ctx context.Context, hours int) (*model.Briefing, error) {
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(hours) * time.Hour)
	return c.Compose(ctx, windowStart, windowEnd)
}

// extractMarkdown pulls the Markdown body out of a model response: known
// field names of a JSON object are tried in order, then the whole parsed
// object re-serialized, then the raw text itself. Whenever any response was
// received, some usable text comes back.
func extractMarkdown(raw string) string {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}

	for _, field := range markdownFields {
		if value, ok := parsed[field].(string); ok && value != "" {
			return value
		}
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}
