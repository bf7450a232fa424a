package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"reactormap/internal/app"
	"reactormap/internal/config"
	"reactormap/internal/ingest"
	"reactormap/internal/logging"
	"reactormap/internal/pris"
	"reactormap/internal/reactor"
	"reactormap/internal/tokens"
	"reactormap/internal/wiki"
)

func main() {
	cfg := config.Load()
	applyEnvOverrides(&cfg)
	logging.Init(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.CardCacheDB,
	})

	idleConnsClosed := make(chan struct{})
	if err := tokens.LoadFromPostgres(cfg.Auth.Postgres); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	go tokens.RefreshPeriodically(cfg.Auth.Postgres, time.Minute, idleConnsClosed)

	deps := app.Deps{Config: cfg, Redis: rdb}

	// The reactor store and pipeline are optional; without them the service
	// still serves the static card.
	var scheduler *cron.Cron
	if cfg.Store.Postgres.Host != "" {
		store, err := reactor.Open(cfg.Store.Postgres)
		if err != nil {
			logging.Error("Failed to open reactor store, live card disabled", "error", err)
		} else {
			defer store.Close()

			wp := wiki.NewClient(cfg.Sync.UserAgent, cfg.Sync.RequestTimeout.Std())
			svc := &ingest.Service{
				Store:        store,
				PRIS:         pris.NewClient(cfg.Sync.UserAgent, cfg.Sync.RequestTimeout.Std()),
				Wikipedia:    wp,
				Wikidata:     wiki.NewWikidataClient(wp),
				CountryDelay: cfg.Sync.CountryDelay.Std(),
				EnrichDelay:  cfg.Sync.EnrichDelay.Std(),
			}
			deps.Stats = store
			deps.Syncer = svc

			if cfg.Sync.Schedule != "" {
				scheduler = cron.New()
				if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
					if _, err := svc.Sync(context.Background()); err != nil {
						logging.Error("Scheduled sync failed", "error", err.Error())
					}
				}); err != nil {
					logging.Error("Invalid sync schedule", "schedule", cfg.Sync.Schedule, "error", err)
				} else {
					scheduler.Start()
					logging.Info("Scheduled PRIS sync", "schedule", cfg.Sync.Schedule)
				}
			}
		}
	}

	fiberApp := app.SetupApp(deps)

	startServer(fiberApp, cfg, idleConnsClosed)
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	<-idleConnsClosed
}

// applyEnvOverrides lets the container environment win over the config file.
// CHROME_BIN takes precedence over render.chrome_path.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("CHROME_BIN"); v != "" {
		cfg.Render.ChromePath = v
	}
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
