package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"

	"reactormap/internal/logging"
	"reactormap/internal/reactor"
)

// Syncer triggers a dataset refresh. Satisfied by *ingest.Service.
type Syncer interface {
	Sync(ctx context.Context) (reactor.MergeStats, error)
}

// HandleReactorStats serves fleet aggregates as JSON.
func (svc *CardService) HandleReactorStats(c *fiber.Ctx) error {
	if svc.Stats == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Reactor store not configured")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	stats, err := svc.Stats.Stats(ctx)
	if err != nil {
		logging.Error("Fleet stats query failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Fleet stats unavailable")
	}

	resp := fiber.Map{
		"total":                   stats.Total,
		"operational":             stats.Operational,
		"operational_capacity_mw": stats.OperationalCapacityMW,
		"operational_capacity_gw": stats.OperationalGW(),
	}
	if !stats.LastSyncAt.IsZero() {
		resp["last_sync_at"] = stats.LastSyncAt
	}
	return c.JSON(resp)
}

// SyncTrigger serves POST /v1/sync: it starts one background PRIS sync run.
type SyncTrigger struct {
	Syncer  Syncer
	running int32
}

// Handle kicks off a sync unless one is already in flight.
func (t *SyncTrigger) Handle(c *fiber.Ctx) error {
	if t.Syncer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Sync pipeline not configured")
	}
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return fiber.NewError(fiber.StatusConflict, "Sync already running")
	}

	go func() {
		defer atomic.StoreInt32(&t.running, 0)
		stats, err := t.Syncer.Sync(context.Background())
		if err != nil {
			logging.Error("Triggered sync failed", "error", err.Error())
			return
		}
		logging.Info("Triggered sync finished",
			"matched", stats.Matched, "updated", stats.Updated, "new", stats.New)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// RequireToken rejects requests that did not authenticate with an API key.
// The keyauth middleware lets keyless requests through for the public asset
// routes, so mutating routes re-check here.
func RequireToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := c.Locals("api_key").(string); !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "API key required")
		}
		return c.Next()
	}
}
