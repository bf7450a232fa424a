package main

import (
	"testing"

	"reactormap/internal/config"
)

func TestApplyEnvOverrides_ChromeBin(t *testing.T) {
	var cfg config.Config
	cfg.Render.ChromePath = "/usr/bin/chromium"

	t.Setenv("CHROME_BIN", "/opt/chrome/chrome")
	applyEnvOverrides(&cfg)
	if cfg.Render.ChromePath != "/opt/chrome/chrome" {
		t.Fatalf("expected CHROME_BIN to win, got %q", cfg.Render.ChromePath)
	}

	t.Setenv("CHROME_BIN", "")
	cfg.Render.ChromePath = "/usr/bin/chromium"
	applyEnvOverrides(&cfg)
	if cfg.Render.ChromePath != "/usr/bin/chromium" {
		t.Fatalf("expected configured path kept, got %q", cfg.Render.ChromePath)
	}
}
