package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/aiscope/aiscope/database"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
)

const (
	fetchTimeout  = 30 * time.Second
	feedUserAgent = "aiscope/1.0"
)

// Fetcher pulls items from configured feeds and records the new ones as
// documents. An item already known by URL or by content hash is skipped, so
// running the fetcher repeatedly over the same feeds is safe.
type Fetcher struct {
	documents database.DocumentsDBHandlerFunctions
	parser    *gofeed.Parser
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewFetcher creates a feed fetcher. One feed request goes out per second
// at most.
func NewFetcher(documents database.DocumentsDBHandlerFunctions, logger *slog.Logger) *Fetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: fetchTimeout}
	parser.UserAgent = feedUserAgent

	return &Fetcher{
		documents: documents,
		parser:    parser,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		log:       logger,
	}
}

// FetchAll fetches every source in order and returns the number of new
// documents stored. A failing source is logged and does not block the rest.
func (f *Fetcher) FetchAll(ctx context.Context, sources []FeedSource) (int, error) {
	stored := 0
	for _, source := range sources {
		if err := f.limiter.Wait(ctx); err != nil {
			return stored, helper.NewError("wait for rate limiter", err)
		}

		count, err := f.FetchSource(ctx, source)
		if err != nil {
			f.log.Error("Failed to fetch source",
				slog.String("source", source.Name),
				slog.String("url", source.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		stored += count
	}

	return stored, nil
}

// FetchSource fetches one feed and stores its unseen items as documents.
// Returns the number of documents stored.
func (f *Fetcher) FetchSource(ctx context.Context, source FeedSource) (int, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return 0, helper.NewError("parse feed", err)
	}

	now := time.Now().UTC()
	stored := 0

	for _, item := range feed.Items {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if item.Link == "" {
			continue
		}

		content := item.Title + "\n\n" + item.Description
		contentHash := model.HashContent(content)

		exists, err := f.documents.DocumentExistsByHash(contentHash)
		if err != nil {
			return stored, helper.NewError("check content hash", err)
		}
		if exists {
			continue
		}

		document := &model.Document{
			URL:         item.Link,
			Title:       item.Title,
			SourceName:  source.Name,
			PublishedAt: publishedAt(item),
			FetchedAt:   now,
			Content:     content,
			ContentHash: contentHash,
		}

		err = f.documents.InsertDocument(document)
		if errors.Is(err, sql.ErrNoRows) {
			// URL already stored under a different content hash
			continue
		}
		if err != nil {
			return stored, helper.NewError("insert document", err)
		}

		stored++
	}

	f.log.Info("Fetched source",
		slog.String("source", source.Name),
		slog.Int("num_items", len(feed.Items)),
		slog.Int("num_stored", stored),
	)

	return stored, nil
}

func publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	return nil
}
