package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "mortgages.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "mortgage", cfg.Redis.KeyPrefix)
	assert.Equal(t, "auto", cfg.Counter.Strategy)
	assert.Equal(t, 50, cfg.Counter.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Counter.InitialBackoff)
	assert.Equal(t, "0 0 23 * * *", cfg.Pipeline.NightlySchedule)
	assert.Equal(t, "0 0 9 * * *", cfg.Pipeline.MorningSchedule)
	assert.Equal(t, 7*24*time.Hour, cfg.Pipeline.OfferLinkTTL)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.ShutdownTimeout)
	assert.Equal(t, "log", cfg.Notifier.Mode)
	assert.Equal(t, "local", cfg.Documents.Backend)
	assert.Equal(t, ":8080", cfg.Server.APIAddr)
	assert.Equal(t, ":8081", cfg.Server.SchedulerAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("COUNTER_STRATEGY", "CAS")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "7")
	t.Setenv("JOB_RUN_TIMEOUT", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "0")
	t.Setenv("NOTIFIER", "webhook")
	t.Setenv("NOTIFIER_WEBHOOK_URL", "https://relay.example.com/mail")
	t.Setenv("DOCUMENT_STORE", "gcs")
	t.Setenv("GCS_BUCKET", "offers")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "cas", cfg.Counter.Strategy)
	assert.Equal(t, 7, cfg.Counter.MaxAttempts)
	assert.Zero(t, cfg.Pipeline.RunTimeout)
	assert.Zero(t, cfg.Pipeline.ShutdownTimeout)
	assert.Equal(t, "https://relay.example.com/mail", cfg.Notifier.WebhookURL)
	assert.Equal(t, "offers", cfg.Documents.GCSBucket)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad backend", env: map[string]string{"STORE_BACKEND": "mongo"}},
		{name: "bad strategy", env: map[string]string{"COUNTER_STRATEGY": "lock"}},
		{name: "zero attempts", env: map[string]string{"COUNTER_MAX_ATTEMPTS": "0"}},
		{name: "bad duration", env: map[string]string{"DB_PING_TIMEOUT": "soon"}},
		{name: "bad link ttl", env: map[string]string{"OFFER_LINK_TTL": "7d"}},
		{name: "negative shutdown timeout", env: map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}},
		{name: "webhook without url", env: map[string]string{"NOTIFIER": "webhook"}},
		{name: "bad notifier", env: map[string]string{"NOTIFIER": "sms"}},
		{name: "gcs without bucket", env: map[string]string{"DOCUMENT_STORE": "gcs"}},
		{name: "bad document store", env: map[string]string{"DOCUMENT_STORE": "ftp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	assert.Equal(t, 25, getEnvInt("DB_MAX_OPEN_CONNS", 25))
}
