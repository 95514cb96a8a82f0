package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr  string `json:"httpAddr"`
	GRPCAddr  string `json:"grpcAddr"`
	DataDir   string `json:"dataDir"`
	OutputDir string `json:"outputDir"`
	// RedisAddr enables the shared cross-process email limiter when set.
	RedisAddr string `json:"redisAddr"`

	Batch    BatchConfig    `json:"batch"`
	Retry    RetryConfig    `json:"retry"`
	Sessions SessionsConfig `json:"sessions"`
	Email    EmailConfig    `json:"email"`
	Log      LogConfig      `json:"log"`
}

// BatchConfig is the default processing cadence for new sessions.
type BatchConfig struct {
	Size        int `json:"size"`
	StepDelayMs int `json:"stepDelayMs"`
}

// RetryConfig is the per-item retry policy.
type RetryConfig struct {
	MaxAttempts int     `json:"maxAttempts"`
	BaseMs      int     `json:"baseMs"`
	CapMs       int     `json:"capMs"`
	Jitter      float64 `json:"jitter"`
}

// SessionsConfig controls the idle sweep.
type SessionsConfig struct {
	SweepIntervalMs int `json:"sweepIntervalMs"`
	RetentionMs     int `json:"retentionMs"`
}

// EmailConfig points at the email provider.
type EmailConfig struct {
	APIURL       string `json:"apiUrl"`
	APIKey       string `json:"apiKey"`
	From         string `json:"from"`
	RateLimit    int    `json:"rateLimit"`
	RateWindowMs int    `json:"rateWindowMs"`
	TimeoutMs    int    `json:"timeoutMs"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		GRPCAddr:  ":9090",
		DataDir:   DefaultDataDir(),
		OutputDir: filepath.Join(DefaultDataDir(), "certificates"),
		Batch:     BatchConfig{Size: 20, StepDelayMs: 500},
		Retry:     RetryConfig{MaxAttempts: 3, BaseMs: 1000, CapMs: 30000, Jitter: 0.2},
		Sessions:  SessionsConfig{SweepIntervalMs: 10 * 60 * 1000, RetentionMs: 60 * 60 * 1000},
		Email: EmailConfig{
			APIURL:       "https://api.resend.com/emails",
			RateLimit:    2,
			RateWindowMs: 1000,
			TimeoutMs:    15000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Batch.Size <= 0:
		return errors.New("batch.size must be positive")
	case c.Batch.StepDelayMs < 0:
		return errors.New("batch.stepDelayMs must not be negative")
	case c.Retry.MaxAttempts <= 0:
		return errors.New("retry.maxAttempts must be positive")
	case c.Retry.Jitter < 0 || c.Retry.Jitter > 1:
		return errors.New("retry.jitter must be within [0,1]")
	case c.Email.RateLimit < 0 || c.Email.RateWindowMs < 0:
		return errors.New("email rate limit must not be negative")
	case c.DataDir == "":
		return errors.New("dataDir is required")
	}
	return nil
}

func (b BatchConfig) StepDelay() time.Duration { return ms(b.StepDelayMs) }

func (r RetryConfig) Base() time.Duration { return ms(r.BaseMs) }
func (r RetryConfig) Cap() time.Duration  { return ms(r.CapMs) }

func (s SessionsConfig) SweepInterval() time.Duration { return ms(s.SweepIntervalMs) }
func (s SessionsConfig) Retention() time.Duration     { return ms(s.RetentionMs) }

func (e EmailConfig) RateWindow() time.Duration { return ms(e.RateWindowMs) }
func (e EmailConfig) Timeout() time.Duration    { return ms(e.TimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
