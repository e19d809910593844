package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.ListenAddr != ":8080" {
			t.Errorf("ListenAddr = %q", cfg.ListenAddr)
		}
		if cfg.PendingTimeout != 30*time.Second {
			t.Errorf("PendingTimeout = %s", cfg.PendingTimeout)
		}
		if cfg.MongoDatabase != "devicecontrol" {
			t.Errorf("MongoDatabase = %q", cfg.MongoDatabase)
		}
		if cfg.MaxMessageSize != 65536 {
			t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LISTEN_ADDR", ":9090")
		t.Setenv("PENDING_ADMIN_TIMEOUT", "45s")
		t.Setenv("DEBUG", "true")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.ListenAddr != ":9090" {
			t.Errorf("ListenAddr = %q", cfg.ListenAddr)
		}
		if cfg.PendingTimeout != 45*time.Second {
			t.Errorf("PendingTimeout = %s", cfg.PendingTimeout)
		}
		if !cfg.Debug {
			t.Error("Debug should be enabled")
		}
	})

	t.Run("non-positive timeout is rejected", func(t *testing.T) {
		t.Setenv("PENDING_ADMIN_TIMEOUT", "0s")
		if _, err := Load(); err == nil {
			t.Error("expected error for zero timeout")
		}
	})

	t.Run("unparseable timeout is rejected", func(t *testing.T) {
		t.Setenv("PENDING_ADMIN_TIMEOUT", "soon")
		if _, err := Load(); err == nil {
			t.Error("expected error for invalid duration")
		}
	})
}
