package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mirror", cfg.OutputDir)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 30, cfg.FetchTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.False(t, cfg.FollowLinks)
	assert.Equal(t, "webmirror.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, "admin", cfg.AdminUser)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.UserAgent, "Mozilla/5.0")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEBMIRROR_BASE_URL", "https://www.example.org")
	t.Setenv("WEBMIRROR_OUTPUT_DIR", "/tmp/mirror-out")
	t.Setenv("WEBMIRROR_CONCURRENCY", "12")
	t.Setenv("WEBMIRROR_FOLLOW_LINKS", "true")
	t.Setenv("WEBMIRROR_SERVER_PORT", "9090")
	t.Setenv("WEBMIRROR_ADMIN_PASS", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.example.org", cfg.BaseURL)
	assert.Equal(t, "/tmp/mirror-out", cfg.OutputDir)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.True(t, cfg.FollowLinks)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "hunter2", cfg.AdminPass)
}
