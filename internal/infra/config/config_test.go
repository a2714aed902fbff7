package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("NOTIFIER", "log")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("ADMIN_TELEGRAM_ID", "")
	t.Setenv("ALERT_HORIZON_DAYS", "")
	t.Setenv("NOTIFIER_TIMEOUT", "")
	t.Setenv("CLAIM_TTL", "")
	t.Setenv("DISPATCH_CONCURRENCY", "")
	t.Setenv("RETRY_MAX_ATTEMPTS", "")
	t.Setenv("RETRY_BACKOFF", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 90, cfg.AlertHorizonDays)
	assert.Equal(t, 90*24*time.Hour, cfg.AlertHorizon())
	assert.Equal(t, 30*time.Second, cfg.NotifierTimeout)
	assert.Equal(t, 15*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, 0, cfg.RetryMaxAttempts)
	assert.Equal(t, "0 * * * *", cfg.CronSpecDispatch)
	assert.Equal(t, "0 3 * * *", cfg.CronSpecSweep)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}, "STORE_DRIVER"},
		{"telegram without token", map[string]string{"NOTIFIER": "telegram"}, "TELEGRAM_TOKEN"},
		{"token without admin", map[string]string{"TELEGRAM_TOKEN": "abc"}, "ADMIN_TELEGRAM_ID"},
		{"bad horizon", map[string]string{"ALERT_HORIZON_DAYS": "0"}, "ALERT_HORIZON_DAYS"},
		{"bad timeout", map[string]string{"NOTIFIER_TIMEOUT": "soon"}, "NOTIFIER_TIMEOUT"},
		{"claim ttl too short", map[string]string{"CLAIM_TTL": "10s"}, "CLAIM_TTL"},
		{"negative retries", map[string]string{"RETRY_MAX_ATTEMPTS": "-1"}, "RETRY_MAX_ATTEMPTS"},
		{"zero concurrency", map[string]string{"DISPATCH_CONCURRENCY": "0"}, "DISPATCH_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALERT_HORIZON_DAYS", "30")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BACKOFF", "10m")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("ADMIN_TELEGRAM_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.AlertHorizonDays)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.RetryBackoff)
	assert.Equal(t, int64(42), cfg.AdminTelegramID)
}
