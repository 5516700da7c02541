package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "PLUGIN_DIR", "TICK_MS", "POOL_CAPACITY",
		"LEASE_TTL_SECS", "PLUGIN_TIMEOUT_SECS", "MAX_RETRIES", "RETRY_BASE_MS",
		"RETRY_CAP_MS", "LOG_LEVEL", "HTTP_PORT", "JWT_SECRET", "JWT_MAXAGE_SECS",
	} {
		original, wasSet := os.LookupEnv(key)
		os.Unsetenv(key)
		if wasSet {
			t.Cleanup(func() { os.Setenv(key, original) })
		}
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.PluginDir != "./plugins" {
		t.Fatalf("PluginDir = %q, want ./plugins", cfg.PluginDir)
	}
	if cfg.Tick() != time.Second {
		t.Fatalf("Tick() = %v, want 1s", cfg.Tick())
	}
	if cfg.LeaseTTL() != 5*time.Minute {
		t.Fatalf("LeaseTTL() = %v, want 5m", cfg.LeaseTTL())
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryCap() != time.Hour {
		t.Fatalf("RetryCap() = %v, want 1h", cfg.RetryCap())
	}
	if cfg.ShutdownDeadline != 30*time.Second {
		t.Fatalf("ShutdownDeadline = %v, want 30s", cfg.ShutdownDeadline)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("TICK_MS", "250")
	t.Setenv("MAX_RETRIES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Tick() != 250*time.Millisecond {
		t.Fatalf("Tick() = %v, want 250ms", cfg.Tick())
	}
	if cfg.MaxRetries != 7 {
		t.Fatalf("MaxRetries = %d, want 7", cfg.MaxRetries)
	}
}
