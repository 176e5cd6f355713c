// Command migrate applies or resets the recorder schema.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/samirrijal/forestlens/internal/adapters/postgres"
	"github.com/samirrijal/forestlens/internal/pkg/config"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("forestlens-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Server.LogLevel, "text", "forestlens-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(),
		postgres.WithAppName("forestlens-migrate"),
		postgres.WithMaxConns(1),
	)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		applied, err := db.Migrate(ctx, migrationsDir)
		for _, name := range applied {
			slog.Info("migration applied", "name", name)
		}
		if err != nil {
			log.Fatalf("up: %v", err)
		}
		slog.Info("schema up to date", "applied", len(applied))
	case "down":
		if err := db.Reset(ctx); err != nil {
			log.Fatalf("down: %v", err)
		}
		slog.Info("recorder schema dropped")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
