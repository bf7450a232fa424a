package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"reactormap/internal/card"
	"reactormap/internal/config"
	"reactormap/internal/logging"
	"reactormap/internal/reactor"
	"reactormap/internal/render"
)

// StatsSource supplies fleet aggregates for the live card and the stats
// endpoint. Satisfied by *reactor.Store.
type StatsSource interface {
	Stats(ctx context.Context) (reactor.FleetStats, error)
}

// CardService bundles configuration and dependencies for card rendering.
type CardService struct {
	Config *config.Config
	Redis  *redis.Client
	Stats  StatsSource

	poolMu  sync.Mutex
	pool    *render.Pool
	poolErr error
}

// NewCardService creates a new CardService instance. stats may be nil when no
// reactor store is configured; the live card then falls back to the static
// one.
func NewCardService(cfg config.Config, rdb *redis.Client, stats StatsSource) *CardService {
	return &CardService{
		Config: &cfg,
		Redis:  rdb,
		Stats:  stats,
	}
}

func (svc *CardService) getPool() (*render.Pool, error) {
	svc.poolMu.Lock()
	defer svc.poolMu.Unlock()

	if svc.Config.Render.ChromePoolSize <= 0 {
		return nil, nil
	}
	if svc.pool != nil {
		return svc.pool, nil
	}
	pool, err := render.NewPool(*svc.Config)
	if err != nil {
		svc.poolErr = err
		return nil, err
	}
	svc.pool = pool
	return svc.pool, nil
}

// HandleCard serves the static social-preview card. Deterministic: the
// document is built from literals, so repeated requests are byte-identical.
func (svc *CardService) HandleCard(c *fiber.Ctx) error {
	return svc.serveCard(c, card.Compose(), 1)
}

// HandleLiveCard serves the card with badge numbers from the stored fleet
// stats when ?live=1 and a store is available.
func (svc *CardService) HandleLiveCard(c *fiber.Ctx) error {
	doc := card.Compose()
	if c.Query("live") == "1" && svc.Stats != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		stats, err := svc.Stats.Stats(ctx)
		cancel()
		if err != nil {
			logging.Warn("Fleet stats unavailable, serving static card", "error", err.Error())
		} else {
			doc = card.ComposeWithStats(stats)
		}
	}
	return svc.serveCard(c, doc, 1)
}

// HandleHalfCard serves the card downscaled to half dimensions (600x315).
func (svc *CardService) HandleHalfCard(c *fiber.Ctx) error {
	return svc.serveCard(c, card.Compose(), 2)
}

// serveCard renders (or fetches from cache) the document and responds with
// image/png. divisor > 1 downscales the rendered card by that factor.
func (svc *CardService) serveCard(c *fiber.Ctx, doc card.Document, divisor int) error {
	cacheKey := computeCardCacheKey(doc, divisor)

	if svc.Redis != nil && svc.Config.Cache.CardCacheEnabled {
		if cached, err := getCachedCard(c, svc.Redis, cacheKey); err == nil && cached != nil {
			return respondPNG(c, doc, cached)
		}
	}

	buf, err := svc.renderCard(doc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Error("Card render timeout", "timeout_secs", svc.Config.Render.TimeoutSecs, "error", err.Error())
			return fiber.NewError(fiber.StatusRequestTimeout, "Card rendering took too long")
		}
		if render.IsSessionInterrupted(err) {
			logging.Error("Chrome session interrupted", "error", err.Error())
			return fiber.NewError(fiber.StatusServiceUnavailable, "Chrome session interrupted")
		}
		logging.Error("Card render failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Card rendering failed: "+err.Error())
	}

	if divisor > 1 {
		buf, err = downscalePNG(buf, doc.Width/divisor, doc.Height/divisor)
		if err != nil {
			logging.Error("Card downscale failed", "error", err.Error())
			return fiber.NewError(fiber.StatusInternalServerError, "Card downscale failed")
		}
	} else if err := verifyPNG(buf, doc.Width, doc.Height); err != nil {
		logging.Error("Rendered card failed verification", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Card verification failed")
	}

	if len(buf) > svc.Config.Limits.MaxImageBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Image exceeds allowed size")
	}

	if svc.Redis != nil && svc.Config.Cache.CardCacheEnabled {
		setCachedCard(c, svc.Redis, cacheKey, buf, svc.Config.Cache.CardCacheTTL.Std())
	}

	requestID := c.Get("X-Request-ID")
	logging.Info("Card rendered", "bytes", len(buf), "request_id", requestID)
	return respondPNG(c, doc, buf)
}

func (svc *CardService) renderCard(doc card.Document) ([]byte, error) {
	pool, err := svc.getPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		// Fallback: start a new Chrome instance per request.
		return render.Snapshot(doc, *svc.Config)
	}

	timeout := time.Duration(svc.Config.Render.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(tab.Ctx, timeout)
		buf, renderErr := render.SnapshotInTab(ctx, doc)
		cancel()

		pool.Release(tab, renderErr)
		return buf, renderErr
	}

	buf, renderErr := runOnce()
	if renderErr != nil && render.IsSessionInterrupted(renderErr) {
		logging.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		_ = pool.Restart()
		return runOnce()
	}
	return buf, renderErr
}

func respondPNG(c *fiber.Ctx, doc card.Document, buf []byte) error {
	c.Set("Content-Type", doc.MIME)
	c.Set("Cache-Control", "public, max-age=86400")
	c.Set("X-Image-Alt", doc.AltText)
	return c.Send(buf)
}

// verifyPNG checks that the rendered bytes decode to the declared dimensions.
func verifyPNG(buf []byte, width, height int) error {
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("rendered %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// downscalePNG resizes the rendered card and re-encodes it as PNG.
func downscalePNG(buf []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	small := imaging.Resize(img, width, height, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, small, imaging.PNG); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// computeCardCacheKey creates a SHA256-based cache key from the document.
func computeCardCacheKey(doc card.Document, divisor int) string {
	h := sha256.New()
	h.Write([]byte(doc.HTML))
	h.Write([]byte(strconv.Itoa(doc.Width)))
	h.Write([]byte(strconv.Itoa(doc.Height)))
	h.Write([]byte(strconv.Itoa(divisor)))
	return "cardcache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedCard attempts to retrieve a cached card from Redis.
func getCachedCard(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}

	logging.Info("Card cache hit", "key", key)
	return cached, nil
}

// setCachedCard stores a rendered card in Redis.
func setCachedCard(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}

// HandleChromeStats exposes basic observability for the render pool
// (capacity / idle / in_use).
func (svc *CardService) HandleChromeStats(c *fiber.Ctx) error {
	pool, err := svc.getPool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}

	// Pool disabled.
	if pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.Render.ChromePoolSize,
			"profile_dir":    "",
			"timeout_secs":   svc.Config.Render.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := pool.Stats(svc.Config.Render.TimeoutSecs)
	return c.JSON(fiber.Map{
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   s.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
