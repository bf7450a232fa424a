package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"reactormap/internal/card"
	"reactormap/internal/config"
	"reactormap/internal/reactor"
)

func testCardCfg() config.Config {
	var cfg config.Config
	cfg.Render.TimeoutSecs = 1
	cfg.Render.ChromePoolSize = 0
	cfg.Limits.MaxImageBytes = 5 * 1024 * 1024
	cfg.Cache.CardCacheEnabled = true
	cfg.Cache.CardCacheTTL = config.Duration(time.Minute)
	return cfg
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestComputeCardCacheKey(t *testing.T) {
	doc := card.Compose()
	k1 := computeCardCacheKey(doc, 1)
	k2 := computeCardCacheKey(doc, 1)
	if k1 != k2 {
		t.Fatalf("cache key not deterministic: %q vs %q", k1, k2)
	}
	if computeCardCacheKey(doc, 2) == k1 {
		t.Fatalf("expected divisor to change the cache key")
	}
	if len(k1) < len("cardcache:")+64 {
		t.Fatalf("unexpected key shape: %q", k1)
	}
}

func TestHandleCard_ServedFromCache(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	svc := NewCardService(testCardCfg(), rdb, nil)

	doc := card.Compose()
	cached := encodePNG(t, doc.Width, doc.Height)
	if err := mrs.Set(computeCardCacheKey(doc, 1), string(cached)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	app := fiber.New()
	app.Get("/social-card.png", svc.HandleCard)

	resp, err := app.Test(httptest.NewRequest("GET", "/social-card.png", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png got %q", ct)
	}
	if alt := resp.Header.Get("X-Image-Alt"); alt != doc.AltText {
		t.Fatalf("unexpected alt text header: %q", alt)
	}
}

type failingStats struct{}

func (failingStats) Stats(context.Context) (reactor.FleetStats, error) {
	return reactor.FleetStats{}, errors.New("db down")
}

func TestHandleLiveCard_FallsBackToStaticOnStatsError(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	svc := NewCardService(testCardCfg(), rdb, failingStats{})

	// Only the static document is cached, so a 200 proves the fallback.
	doc := card.Compose()
	if err := mrs.Set(computeCardCacheKey(doc, 1), string(encodePNG(t, doc.Width, doc.Height))); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	app := fiber.New()
	app.Get("/v1/card.png", svc.HandleLiveCard)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/card.png?live=1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
}

func TestHandleCard_RenderErrorWhenChromeMissing(t *testing.T) {
	cfg := testCardCfg()
	cfg.Cache.CardCacheEnabled = false
	cfg.Render.ChromePath = "/definitely/missing/chrome"
	svc := NewCardService(cfg, nil, nil)

	app := fiber.New()
	app.Get("/social-card.png", svc.HandleCard)

	resp, err := app.Test(httptest.NewRequest("GET", "/social-card.png", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError && resp.StatusCode != fiber.StatusRequestTimeout {
		t.Fatalf("expected render failure status, got %d", resp.StatusCode)
	}
}

func TestVerifyPNG(t *testing.T) {
	buf := encodePNG(t, card.Width, card.Height)
	if err := verifyPNG(buf, card.Width, card.Height); err != nil {
		t.Fatalf("expected valid png, got %v", err)
	}
	if err := verifyPNG(buf, 100, 100); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if err := verifyPNG([]byte("not a png"), card.Width, card.Height); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDownscalePNG(t *testing.T) {
	buf := encodePNG(t, card.Width, card.Height)
	small, err := downscalePNG(buf, card.Width/2, card.Height/2)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(small))
	if err != nil {
		t.Fatalf("decode downscaled: %v", err)
	}
	if b := img.Bounds(); b.Dx() != card.Width/2 || b.Dy() != card.Height/2 {
		t.Fatalf("expected %dx%d, got %dx%d", card.Width/2, card.Height/2, b.Dx(), b.Dy())
	}

	if _, err := downscalePNG([]byte("junk"), 10, 10); err == nil {
		t.Fatalf("expected decode error for junk input")
	}
}

func TestSetCachedCard_DefaultTTL(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})

	app := fiber.New()
	app.Get("/cache", func(c *fiber.Ctx) error {
		setCachedCard(c, rdb, "k", []byte("png"), 0)
		ttl := mrs.TTL("k")
		if ttl < 50*time.Second || ttl > 70*time.Second {
			t.Fatalf("expected default ttl around 1m, got %v", ttl)
		}
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/cache", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
}

func TestHandleChromeStats_Disabled(t *testing.T) {
	svc := NewCardService(testCardCfg(), nil, nil)

	app := fiber.New()
	app.Get("/v1/chrome/stats", svc.HandleChromeStats)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/chrome/stats", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var body struct {
		Enabled  bool `json:"enabled"`
		Capacity int  `json:"capacity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Enabled || body.Capacity != 0 {
		t.Fatalf("expected disabled pool stats, got %+v", body)
	}
}
