package main

import (
	"context"
	"time"

	migration "innkeep/internal/migrations/postgres"
	"innkeep/pkg/config"
	"innkeep/pkg/postgres"
)

const JobName = "innkeep-migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.Log.Info("Starting Postgres migration job")

	db, err := postgres.Connect(postgres.Config{
		DSN:         cfg.DatabaseURL,
		ConnTimeout: cfg.DatabaseConnTimeout,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to connect to Postgres", "error", err)
	}
	defer db.Close()

	if err := migration.Run(ctx, db, cfg.Log); err != nil {
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	cfg.Log.Info("Migration completed successfully")
}
