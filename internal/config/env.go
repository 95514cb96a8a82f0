package config

import (
	"os"
	"strconv"
)

// FromEnv overlays CERTD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("CERTD_HTTP_ADDR", &cfg.HTTPAddr)
	str("CERTD_GRPC_ADDR", &cfg.GRPCAddr)
	str("CERTD_DATA_DIR", &cfg.DataDir)
	str("CERTD_OUTPUT_DIR", &cfg.OutputDir)
	str("CERTD_REDIS_ADDR", &cfg.RedisAddr)

	num("CERTD_BATCH_SIZE", &cfg.Batch.Size)
	num("CERTD_BATCH_STEP_DELAY_MS", &cfg.Batch.StepDelayMs)

	num("CERTD_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	num("CERTD_RETRY_BASE_MS", &cfg.Retry.BaseMs)
	num("CERTD_RETRY_CAP_MS", &cfg.Retry.CapMs)
	if v := os.Getenv("CERTD_RETRY_JITTER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.Jitter = f
		}
	}

	num("CERTD_SESSIONS_SWEEP_INTERVAL_MS", &cfg.Sessions.SweepIntervalMs)
	num("CERTD_SESSIONS_RETENTION_MS", &cfg.Sessions.RetentionMs)

	str("CERTD_EMAIL_API_URL", &cfg.Email.APIURL)
	str("CERTD_EMAIL_API_KEY", &cfg.Email.APIKey)
	str("CERTD_EMAIL_FROM", &cfg.Email.From)
	num("CERTD_EMAIL_RATE_LIMIT", &cfg.Email.RateLimit)
	num("CERTD_EMAIL_RATE_WINDOW_MS", &cfg.Email.RateWindowMs)
	num("CERTD_EMAIL_TIMEOUT_MS", &cfg.Email.TimeoutMs)

	str("CERTD_LOG_LEVEL", &cfg.Log.Level)
	str("CERTD_LOG_FORMAT", &cfg.Log.Format)
}
