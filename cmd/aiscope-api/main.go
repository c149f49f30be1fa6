// Command aiscope-api serves the read-only HTTP API over the ledger
package main

import (
	"flag"
	"log"

	"github.com/aiscope/aiscope"
	"github.com/aiscope/aiscope/helper"
	"github.com/aiscope/aiscope/llm"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("invalid database configuration: %v", err)
	}

	// The API only reads; extraction never runs here
	scope, err := aiscope.New(dbConfig, llm.Disabled())
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer scope.Close()

	if err := scope.APIServer().Run(*addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
