package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, vars map[string]string) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, env.ParseWithOptions(cfg, env.Options{Environment: vars}))
	cfg.Sanitize()
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t, map[string]string{})

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Publish.PollInterval)
	assert.Equal(t, 12, cfg.Publish.PollAttempts)
	assert.Equal(t, 3, cfg.Publish.RemoteAttempts)
	assert.Equal(t, time.Second, cfg.Publish.RemoteBaseDelay)
	assert.Equal(t, 15*time.Minute, cfg.Publish.ClaimLease)
	assert.Equal(t, "@every 1m", cfg.Publish.CronSchedule)
	assert.Equal(t, "https://graph.facebook.com/v20.0", cfg.Instagram.GraphAPIURL)
	assert.Equal(t, "auto", cfg.Spaces.Region)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestPrefixedSections(t *testing.T) {
	cfg := parse(t, map[string]string{
		"SPACES_BUCKET":   "reels",
		"SPACES_ENDPOINT": "https://fra1.digitaloceanspaces.com",
		"LOG_LEVEL":       "debug",
		"CRON_SECRET":     "s3cret",
	})

	assert.Equal(t, "reels", cfg.Spaces.BucketName)
	assert.Equal(t, "https://fra1.digitaloceanspaces.com", cfg.Spaces.Endpoint)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "s3cret", cfg.Publish.CronSecret)
}

func TestSanitize(t *testing.T) {
	cfg := parse(t, map[string]string{
		"PUBLISH_POLL_INTERVAL": "0s",
		"PUBLISH_POLL_ATTEMPTS": "-1",
		"REMOTE_MAX_ATTEMPTS":   "0",
		"BATCH_CONCURRENCY":     "500",
		"CLAIM_LEASE":           "-5m",
		"SESSION_TTL":           "0s",
	})

	assert.Equal(t, 5*time.Second, cfg.Publish.PollInterval)
	assert.Equal(t, 12, cfg.Publish.PollAttempts)
	assert.Equal(t, 3, cfg.Publish.RemoteAttempts)
	assert.Equal(t, 32, cfg.Publish.BatchConcurrency)
	assert.Equal(t, 15*time.Minute, cfg.Publish.ClaimLease)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)

	cfg = parse(t, map[string]string{"BATCH_CONCURRENCY": "0"})
	assert.Equal(t, 1, cfg.Publish.BatchConcurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{"short", true},
		{"0123456789abcdef", false},
		{"0123456789abcdef01234567", false},
		{"0123456789abcdef0123456789abcdef", false},
		{"0123456789abcdef0123456789abcdef0", true},
	}
	for _, tt := range tests {
		cfg := &Config{SecretKey: tt.key}
		err := cfg.Validate()
		if tt.wantErr {
			assert.Error(t, err, "key length %d", len(tt.key))
		} else {
			assert.NoError(t, err, "key length %d", len(tt.key))
		}
	}
}
