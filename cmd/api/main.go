package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/forestlens/internal/adapters/gfw"
	"github.com/samirrijal/forestlens/internal/adapters/http"
	"github.com/samirrijal/forestlens/internal/adapters/memory"
	natsadapter "github.com/samirrijal/forestlens/internal/adapters/nats"
	"github.com/samirrijal/forestlens/internal/adapters/valkey"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/core/usecases"
	"github.com/samirrijal/forestlens/internal/pkg/config"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("forestlens-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Server.LogLevel, "json", "forestlens-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	if cfg.GFW.APIKey == "" {
		slog.Warn("GFW API key is not set; upstream calls will be rejected")
	}

	// Cache
	var cache ports.CacheService
	switch cfg.Cache.Backend {
	case "valkey":
		vc, err := valkey.New(cfg.Valkey.Addr,
			valkey.WithAuth(cfg.Valkey.Password),
			valkey.WithDB(cfg.Valkey.DB),
		)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer vc.Close()
		cache = vc
	default:
		mc := memory.New()
		mc.StartJanitor(ctx, time.Duration(cfg.Cache.SweepInterval)*time.Second)
		cache = mc
	}
	slog.Info("response cache ready", "backend", cfg.Cache.Backend)

	// Upstream clients
	upstreams := gfw.NewSet(cfg.GFW.APIBase, cfg.GFW.DataAPIBase, cfg.GFW.APIKey,
		gfw.WithTimeout(cfg.GFW.TimeoutDuration()),
		gfw.WithRateLimit(cfg.GFW.RateLimit, cfg.GFW.Burst),
	)

	opts := []usecases.ServiceOption{usecases.WithVersion(cfg.GFW.Version)}

	// NATS: event publisher plus a raw connection for the WebSocket relay
	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, analysis events disabled", "error", err)
		} else {
			defer pub.Close()
			opts = append(opts, usecases.WithEvents(pub))
		}

		natsConn, err = natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			defer natsConn.Close()
		}
	}

	svc := usecases.NewAnalysisService(upstreams, usecases.NewResponseCache(cache), cfg.Retry.Policy(), opts...)

	statuses := make([]http.UpstreamStatus, 0, 2)
	for _, c := range upstreams.Clients() {
		statuses = append(statuses, c)
	}

	deps := &http.Dependencies{
		Analysis:  svc,
		Upstreams: statuses,
		Cache:     cache,
		NATS:      natsConn,
		Settings: http.Settings{
			Development:    cfg.Server.Development(),
			ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
			HandlerTimeout: time.Duration(cfg.Server.HandlerTimeout) * time.Second,
			AllowOrigins:   cfg.Server.AllowOrigins,
			RateLimitMax:   cfg.Server.RateLimit,
		},
	}

	app := http.NewApp(deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting",
			"addr", addr,
			"gfw_api", cfg.GFW.APIBase,
			"gfw_data_api", cfg.GFW.DataAPIBase,
			"mode", cfg.Server.Mode,
		)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
