package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("FEED_BACKEND", "")
	t.Setenv("FEED_LIMIT", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mongo", cfg.Backend)
	assert.Equal(t, 50, cfg.FeedLimit)
	assert.False(t, cfg.Production)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("FEED_BACKEND", "Memory")
	t.Setenv("FEED_LIMIT", "abc")
	t.Setenv("APP_ENV", "prod")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 50, cfg.FeedLimit, "bad ints fall back to default")
	assert.True(t, cfg.Production)
}

func TestLoad_NotifyDefaults(t *testing.T) {
	t.Setenv("NOTIFY_WORKERS", "0")
	t.Setenv("PUBLIC_URL", "")

	cfg := Load()
	assert.Equal(t, "feed.verify", cfg.NotifyQueue)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Empty(t, cfg.SMTPAddr)
}
