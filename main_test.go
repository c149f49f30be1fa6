package aiscope

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"

	"github.com/aiscope/aiscope/helper"
)

var dbPort string

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

var uniqueCounter atomic.Int64

// uniqueSuffix keeps names and urls distinct across tests sharing the container
func uniqueSuffix() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), uniqueCounter.Add(1))
}
