package database

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/model"
	loadSql "github.com/aiscope/aiscope/sql"
)

var dbPort string

var uniqueCounter atomic.Int64

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	database := helper.NewTestDatabase(dbConfig)

	err = loadSql.Init(database.Instance)
	require.NoError(t, err)

	return database
}

// uniqueSuffix makes names and URLs distinct across tests sharing the container
func uniqueSuffix() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), uniqueCounter.Add(1))
}

func insertTestDocument(t *testing.T, documents *DocumentsDBHandler) *model.Document {
	t.Helper()

	suffix := uniqueSuffix()
	content := "Acme AI raised $50M in a Series B round. " + suffix
	document := &model.Document{
		URL:         "https://example.com/articles/" + suffix,
		Title:       "Acme AI raises $50M",
		SourceName:  "Test Feed",
		FetchedAt:   time.Now().UTC(),
		Content:     content,
		ContentHash: model.HashContent(content),
	}

	err := documents.InsertDocument(document)
	require.NoError(t, err, "failed to insert test document")

	return document
}

func insertTestEntity(t *testing.T, entities *EntitiesDBHandler, name string, entityType model.EntityType) *model.Entity {
	t.Helper()

	entity := &model.Entity{
		Name: name + " " + uniqueSuffix(),
		Type: entityType,
	}
	err := entities.InsertEntity(entity)
	require.NoError(t, err, "failed to insert test entity")

	return entity
}
