package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
)

// noveltyWindow is the symmetric occurred-at window around an event inside
// which same-type events count as similar
const noveltyWindow = 7 * 24 * time.Hour

// NoveltyClassifier appends point-in-time novelty labels to recent ledger
// events. It never mutates the events themselves; re-running preserves
// earlier labels as classification history.
type NoveltyClassifier struct {
	events database.EventsDBHandlerFunctions
	log    *slog.Logger
}

// NewNoveltyClassifier creates a novelty classifier
func NewNoveltyClassifier(events database.EventsDBHandlerFunctions, logger *slog.Logger) *NoveltyClassifier {
	return &NoveltyClassifier{
		events: events,
		log:    logger,
	}
}

// ClassifyRecent labels the most recently recorded events, up to limit, and
// returns the number of labels appended. Every processed event gets exactly
// one label per run, all stamped with the same computed_at instant.
func (c *NoveltyClassifier) ClassifyRecent(ctx context.Context, limit int) (int, error) {
	events, err := c.events.SelectRecentEvents(limit)
	if err != nil {
		return 0, helper.NewError("select recent events", err)
	}

	now := time.Now().UTC()
	created := 0

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		label, err := c.computeLabel(event)
		if err != nil {
			return created, helper.NewError("compute novelty label", err)
		}

		err = c.events.InsertNoveltyLabel(&model.NoveltyLabel{
			EventID:    event.ID,
			Label:      label,
			ComputedAt: now,
		})
		if err != nil {
			return created, helper.NewError("insert novelty label", err)
		}

		created++
	}

	c.log.Info("Labeled recent events", slog.Int("count", created))

	return created, nil
}

// computeLabel classifies one event against its similar set as of now:
// no similar events means "new"; a similar event recorded strictly earlier
// means "repeat"; similar events recorded only later mean "update".
// An event without occurred_at has no similar set by definition and is
// always "new".
func (c *NoveltyClassifier) computeLabel(event *model.Event) (model.NoveltyLabelValue, error) {
	if event.OccurredAt == nil {
		return model.NoveltyNew, nil
	}

	similars, err := c.events.SelectSimilarEvents(
		event.ID,
		event.Type,
		event.OccurredAt.Add(-noveltyWindow),
		event.OccurredAt.Add(noveltyWindow),
	)
	if err != nil {
		return "", helper.NewError("select similar events", err)
	}

	if len(similars) == 0 {
		return model.NoveltyNew, nil
	}

	for _, similar := range similars {
		if similar.RecordedAt.Before(event.RecordedAt) {
			return model.NoveltyRepeat, nil
		}
	}

	return model.NoveltyUpdate, nil
}
