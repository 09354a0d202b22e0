package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Neutralize any ambient overrides
	for _, key := range []string{"PORT", "STORAGE_BACKEND", "MAX_FILE_SIZE", "PART_SIZE",
		"SESSION_IDLE_TIMEOUT_HOURS", "SESSION_MAX_AGE_HOURS", "TOKEN_MAX_AGE_HOURS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StorageBackend != "filesystem" {
		t.Errorf("StorageBackend = %q, want filesystem", cfg.StorageBackend)
	}
	if cfg.MaxFileSize != 5*1024*1024*1024 {
		t.Errorf("MaxFileSize = %d, want 5GB", cfg.MaxFileSize)
	}
	if cfg.PartSize != 8*1024*1024 {
		t.Errorf("PartSize = %d, want 8MB", cfg.PartSize)
	}
	if cfg.SessionIdleTimeout != 14*24*time.Hour {
		t.Errorf("SessionIdleTimeout = %v, want 336h", cfg.SessionIdleTimeout)
	}
	if cfg.SessionMaxAge != 60*24*time.Hour {
		t.Errorf("SessionMaxAge = %v, want 1440h", cfg.SessionMaxAge)
	}
	if cfg.TokenMaxAge != 24*time.Hour {
		t.Errorf("TokenMaxAge = %v, want 24h", cfg.TokenMaxAge)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("SESSION_IDLE_TIMEOUT_HOURS", "2")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "7")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.StorageBackend != "s3" || cfg.S3Bucket != "my-bucket" {
		t.Errorf("storage config not overridden: %q %q", cfg.StorageBackend, cfg.S3Bucket)
	}
	if cfg.MaxFileSize != 1048576 {
		t.Errorf("MaxFileSize = %d, want 1048576", cfg.MaxFileSize)
	}
	if cfg.SessionIdleTimeout != 2*time.Hour {
		t.Errorf("SessionIdleTimeout = %v, want 2h", cfg.SessionIdleTimeout)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 7 {
		t.Errorf("rate limit = %v/%v, want 2.5/7", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "")

	cfg := Load()
	if cfg.MaxFileSize != 5*1024*1024*1024 {
		t.Errorf("MaxFileSize = %d, want default on parse failure", cfg.MaxFileSize)
	}
	if cfg.RateLimitBurst != 20 {
		t.Errorf("RateLimitBurst = %d, want default 20", cfg.RateLimitBurst)
	}
}
