// Command recorder consumes analysis-completed events from JetStream and
// records them in Postgres.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/forestlens/internal/adapters/nats"
	"github.com/samirrijal/forestlens/internal/adapters/postgres"
	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/config"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("forestlens-recorder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Server.LogLevel, "json", "forestlens-recorder")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(),
		postgres.WithAppName("forestlens-recorder"),
		postgres.WithMaxConns(cfg.Database.MaxConns),
		postgres.WithConnectTimeout(10*time.Second),
	)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	runs := postgres.NewAnalysisRunRepo(db)

	// NATS
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeAnalysisCompleted(ctx, func(ctx context.Context, ev *domain.AnalysisCompleted) error {
		insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := runs.Insert(insertCtx, ev); err != nil {
			slog.Error("record analysis run", "cache_key", ev.CacheKey, "error", err)
			return err
		}
		slog.Debug("analysis run recorded", "endpoint", ev.Endpoint, "geostore", ev.GeostoreID)
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("recorder consuming", "subject", natsadapter.SubjectAll, "durable", natsadapter.RecorderDurable)

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down recorder", "signal", sig.String())
	cancel()
	// Give in-flight inserts time to finish
	time.Sleep(2 * time.Second)
}
