package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "file", cfg.Mirror.Backend)
	assert.Equal(t, "@LoanTracker:loans", cfg.Mirror.Key)
	assert.Equal(t, 5*time.Second, cfg.GetClientTimeout())
	assert.Equal(t, time.Duration(0), cfg.GetHeartbeatInterval())
	assert.Equal(t, 5*time.Minute, cfg.GetCacheTTL())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MIRROR_BACKEND", "memory")
	t.Setenv("CLIENT_HTTP_TIMEOUT", "250ms")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "3")
	t.Setenv("CACHE_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Mirror.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.GetClientTimeout())
	assert.Equal(t, 3, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "CLIENT_HTTP_TIMEOUT", "soon"},
		{"bad backend", "MIRROR_BACKEND", "sqlite"},
		{"bad url", "CLIENT_SERVER_URL", "not a url"},
		{"bad timezone", "SCHEDULER_TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		Name:     "loans",
		User:     "app",
		Password: "secret",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://app:secret@db:5432/loans?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
