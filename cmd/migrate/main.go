package main

import (
	"context"
	"log"
	"os"

	"washpos/config"
	"washpos/core/store"
	"washpos/core/utils"
)

// Usage: migrate [up|status]. Default is up.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	switch command {
	case "up":
		if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
			logger.Fatalf("migrations: %v", err)
		}
		logger.Printf("migrations applied")
	case "status":
		if err := store.MigrationStatus(context.Background(), db); err != nil {
			logger.Fatalf("status: %v", err)
		}
	default:
		logger.Fatalf("unknown command %q (want up or status)", command)
	}
}
