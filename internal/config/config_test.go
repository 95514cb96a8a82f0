package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Batch.Size != 20 || cfg.Batch.StepDelay() != 500*time.Millisecond {
		t.Fatalf("batch defaults: %+v", cfg.Batch)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Base() != time.Second || cfg.Retry.Cap() != 30*time.Second {
		t.Fatalf("retry defaults: %+v", cfg.Retry)
	}
	if cfg.Sessions.SweepInterval() != 10*time.Minute || cfg.Sessions.Retention() != time.Hour {
		t.Fatalf("session defaults: %+v", cfg.Sessions)
	}
	if cfg.Email.RateLimit != 2 || cfg.Email.RateWindow() != time.Second {
		t.Fatalf("email defaults: %+v", cfg.Email)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "certd.json")
	data := []byte(`{"httpAddr":":9000","batch":{"size":5},"email":{"from":"certs@example.org","rateLimit":10}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.Batch.Size != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	// untouched keys keep defaults
	if cfg.Batch.StepDelayMs != 500 || cfg.Email.RateWindowMs != 1000 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Email.From != "certs@example.org" || cfg.Email.RateLimit != 10 {
		t.Fatalf("email: %+v", cfg.Email)
	}
}

func TestLoadRejectsYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "certd.yaml")
	_ = os.WriteFile(file, []byte("batch: {}"), 0644)
	if _, err := Load(file); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("CERTD_BATCH_SIZE", "7")
	t.Setenv("CERTD_EMAIL_API_KEY", "re_test")
	t.Setenv("CERTD_RETRY_JITTER", "0.5")
	t.Setenv("CERTD_REDIS_ADDR", "localhost:6379")
	t.Setenv("CERTD_SESSIONS_RETENTION_MS", "not-a-number")
	FromEnv(&cfg)
	if cfg.Batch.Size != 7 {
		t.Fatalf("batch size %d", cfg.Batch.Size)
	}
	if cfg.Email.APIKey != "re_test" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("string overrides: %+v", cfg)
	}
	if cfg.Retry.Jitter != 0.5 {
		t.Fatalf("jitter %v", cfg.Retry.Jitter)
	}
	if cfg.Sessions.RetentionMs != 60*60*1000 {
		t.Fatalf("invalid number should be ignored, got %d", cfg.Sessions.RetentionMs)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero batch":       func(c *Config) { c.Batch.Size = 0 },
		"negative delay":   func(c *Config) { c.Batch.StepDelayMs = -1 },
		"zero attempts":    func(c *Config) { c.Retry.MaxAttempts = 0 },
		"jitter too large": func(c *Config) { c.Retry.Jitter = 2 },
		"no data dir":      func(c *Config) { c.DataDir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
