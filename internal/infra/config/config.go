package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL     string
	StoreDriver     string // postgres or memory
	MigrateOnStart  bool
	TelegramToken   string
	AdminTelegramID int64
	Notifier        string // telegram or log
	LogLevel        string
	Environment     string
	MetricsAddr     string // Empty disables the /metrics listener

	CronSpecReconcile string
	CronSpecDispatch  string
	CronSpecSweep     string

	AlertHorizonDays    int
	NotifierTimeout     time.Duration
	DispatchConcurrency int
	RetryMaxAttempts    int // 0 retries failed sends forever
	RetryBackoff        time.Duration
	ClaimTTL            time.Duration

	ExtractorAPIKey  string
	ExtractorBaseURL string
	ExtractorModel   string
	ExtractorTimeout time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", false); err != nil {
		return nil, err
	}

	cfg.Notifier = strings.ToLower(getEnv("NOTIFIER", NotifierTelegram))
	if cfg.Notifier != NotifierTelegram && cfg.Notifier != NotifierLog {
		return nil, fmt.Errorf("invalid NOTIFIER %q (want %s or %s)", cfg.Notifier, NotifierTelegram, NotifierLog)
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" && cfg.Notifier == NotifierTelegram {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	} else if cfg.TelegramToken != "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.CronSpecReconcile = getEnv("CRON_SPEC_RECONCILE", "15 * * * *") // hourly, quarter past
	cfg.CronSpecDispatch = getEnv("CRON_SPEC_DISPATCH", "0 * * * *")    // hourly
	cfg.CronSpecSweep = getEnv("CRON_SPEC_SWEEP", "0 3 * * *")          // 03:00 daily

	if cfg.AlertHorizonDays, err = getInt("ALERT_HORIZON_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.AlertHorizonDays <= 0 {
		return nil, fmt.Errorf("ALERT_HORIZON_DAYS must be positive, got %d", cfg.AlertHorizonDays)
	}
	if cfg.NotifierTimeout, err = getDuration("NOTIFIER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency, err = getInt("DISPATCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency < 1 {
		return nil, fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1, got %d", cfg.DispatchConcurrency)
	}
	if cfg.RetryMaxAttempts, err = getInt("RETRY_MAX_ATTEMPTS", 0); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must not be negative, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBackoff, err = getDuration("RETRY_BACKOFF", 0); err != nil {
		return nil, err
	}
	if cfg.ClaimTTL, err = getDuration("CLAIM_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ClaimTTL <= cfg.NotifierTimeout {
		return nil, fmt.Errorf("CLAIM_TTL (%s) must exceed NOTIFIER_TIMEOUT (%s)", cfg.ClaimTTL, cfg.NotifierTimeout)
	}

	cfg.ExtractorAPIKey = os.Getenv("EXTRACTOR_API_KEY")
	cfg.ExtractorBaseURL = getEnv("EXTRACTOR_BASE_URL", "https://api.anthropic.com")
	cfg.ExtractorModel = os.Getenv("EXTRACTOR_MODEL")
	if cfg.ExtractorTimeout, err = getDuration("EXTRACTOR_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AlertHorizon returns the scheduling look-ahead window.
func (c *AppConfig) AlertHorizon() time.Duration {
	return time.Duration(c.AlertHorizonDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
