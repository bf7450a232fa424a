// Package render rasterizes card documents through headless Chrome.
package render

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"reactormap/internal/config"
	"reactormap/internal/logging"
)

// Tab is one acquired rendering slot. Ctx is scoped to a browser tab.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool keeps a bounded number of tabs over one shared Chrome process. Tabs
// are created lazily from the shared browser context; the semaphore bounds
// concurrent renders.
type Pool struct {
	mu sync.Mutex

	cfg        config.Config
	sem        chan struct{}
	profileDir string

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closed      bool
	restarts    int
	lastRestart time.Time
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	ProfileDir   string
	TimeoutSecs  int
	Restarts     int
	LastRestart  time.Time
}

func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.Render.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create chrome profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "reactormap-chrome-*")
	if err != nil {
		return "", fmt.Errorf("cannot create chrome profile dir: %w", err)
	}
	return dir, nil
}

func allocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering; minimal containers have no GPU stack.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
	)
	if cfg.Render.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Render.ChromePath))
	}
	if cfg.Render.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// NewPool builds a pool of the configured size. The Chrome process itself is
// started lazily on the first render.
func NewPool(cfg config.Config) (*Pool, error) {
	if cfg.Render.ChromePoolSize <= 0 {
		return nil, fmt.Errorf("chrome pool disabled (size %d)", cfg.Render.ChromePoolSize)
	}

	profileDir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.Render.ChromePoolSize),
		profileDir: profileDir,
	}
	for i := 0; i < cfg.Render.ChromePoolSize; i++ {
		p.sem <- struct{}{}
	}
	p.startBrowserLocked()
	return p, nil
}

// startBrowserLocked (re)creates the shared browser context. Callers hold no
// lock during NewPool; Restart holds p.mu.
func (p *Pool) startBrowserLocked() {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		allocatorOptions(p.cfg, p.profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
}

// Acquire blocks until a slot is free or ctx is done, then opens a tab.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("chrome pool is closed")
	}
	browserCtx := p.browserCtx
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.sem:
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: tabCancel}, nil
}

// Release closes the tab and returns its slot. renderErr is logged so pool
// health is visible even when the caller swallows retries.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil && !IsSessionInterrupted(renderErr) {
		logging.Debug("render finished with error", "error", renderErr.Error())
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart tears down the browser and profile dir and starts fresh. Used after
// an interrupted Chrome session.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("chrome pool is closed")
	}

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}

	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	p.profileDir = dir

	// Refill the semaphore; in-flight tabs were killed with the browser.
	drained := false
	for !drained {
		select {
		case <-p.sem:
		default:
			drained = true
		}
	}
	for i := 0; i < cap(p.sem); i++ {
		p.sem <- struct{}{}
	}

	p.startBrowserLocked()
	p.restarts++
	p.lastRestart = time.Now()
	logging.Warn("chrome pool restarted", "restarts", p.restarts, "profile_dir", p.profileDir)
	return nil
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Stats reports pool occupancy for the observability endpoint.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Stats{TimeoutSecs: timeoutSecs}
	}
	capacity := cap(p.sem)
	idle := len(p.sem)
	return Stats{
		Enabled:      true,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.Render.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}

// IsSessionInterrupted reports whether err looks like a dead Chrome session
// rather than a bad input or a timeout.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"session closed",
		"target closed",
		"browser closed",
		"connection closed",
		"websocket: close",
		"chrome process exited",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
