// Command aiscope-pipeline runs one full pipeline pass: fetch the configured
// feeds, extract and persist events from unprocessed documents, classify
// recent events and compose the daily briefing.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/aiscope/aiscope"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/llm"
)

func main() {
	sourcesPath := flag.String("sources", "ingestion/sources.yaml", "path to the feed sources YAML file")
	registryPath := flag.String("registry", "", "path to the curated entity registry YAML file (optional)")
	skipBriefing := flag.Bool("skip-briefing", false, "skip the daily briefing composition")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("invalid database configuration: %v", err)
	}

	llmConfig, err := llm.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid model configuration: %v", err)
	}

	invoker, err := llm.NewBedrockClient(ctx, llmConfig)
	if err != nil {
		log.Fatalf("failed to create model client: %v", err)
	}

	scope, err := aiscope.New(dbConfig, invoker)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer scope.Close()

	if *registryPath != "" {
		if err := scope.UseRegistry(*registryPath); err != nil {
			log.Fatalf("failed to load registry: %v", err)
		}
	}

	if _, err := scope.FetchSources(ctx, *sourcesPath); err != nil {
		log.Fatalf("failed to fetch sources: %v", err)
	}

	if _, err := scope.ProcessUnprocessedDocuments(ctx); err != nil {
		log.Fatalf("failed to process documents: %v", err)
	}

	if _, err := scope.ClassifyRecentEvents(ctx); err != nil {
		log.Fatalf("failed to classify events: %v", err)
	}

	if !*skipBriefing {
		if _, err := scope.ComposeDailyBriefing(ctx); err != nil {
			log.Fatalf("failed to compose briefing: %v", err)
		}
	}
}
