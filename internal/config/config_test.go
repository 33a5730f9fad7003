package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.NdaGrantTTL != 2160*time.Hour {
		t.Fatalf("NdaGrantTTL = %s", cfg.NdaGrantTTL)
	}
	if cfg.SweepSchedule != "@hourly" || cfg.SweepBatch != 500 {
		t.Fatalf("sweep defaults: %q %d", cfg.SweepSchedule, cfg.SweepBatch)
	}
	if cfg.RateBurst != 40 || cfg.RatePerSecond != 20 {
		t.Fatalf("rate defaults: %d %d", cfg.RateBurst, cfg.RatePerSecond)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("JWTSecret should default empty, got %q", cfg.JWTSecret)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PITCHVAULT_ADDR", ":9191")
	t.Setenv("PITCHVAULT_PG_DSN", "postgres://localhost/pitchvault_test")
	t.Setenv("PITCHVAULT_NDA_GRANT_TTL", "48h")
	t.Setenv("PITCHVAULT_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.PGDSN != "postgres://localhost/pitchvault_test" {
		t.Fatalf("PGDSN = %q", cfg.PGDSN)
	}
	if cfg.NdaGrantTTL != 48*time.Hour {
		t.Fatalf("NdaGrantTTL = %s", cfg.NdaGrantTTL)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatalf("JWTSecret = %q", cfg.JWTSecret)
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("PITCHVAULT_NDA_GRANT_TTL", "-1h")
	if _, err := Load(); err == nil {
		t.Fatal("negative ttl must fail")
	}
}

func TestLoadRepairsSweepBatch(t *testing.T) {
	t.Setenv("PITCHVAULT_SWEEP_BATCH", "-3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SweepBatch != 500 {
		t.Fatalf("SweepBatch = %d", cfg.SweepBatch)
	}
}
