package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := []byte(`
livekit:
  api_key: APIkey
  api_secret: secret
  token_ttl: 30m
egress:
  locker: redis
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(DevelopmentEnv, path)
	require.NoError(t, err)

	assert.Equal(t, DevelopmentEnv, cfg.Env)
	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, "APIkey", cfg.LiveKit.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.LiveKit.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.LiveKit.RequestTimeout)
	assert.Equal(t, "redis", cfg.Egress.Locker)
	assert.Equal(t, "redis", cfg.Events.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LIVEKIT_API_KEY", "envkey")
	t.Setenv("LIVEKIT_API_SECRET", "envsecret")
	t.Setenv("DATABASE_URL", "postgres://db/syncflow")

	cfg, err := Load(DevelopmentEnv, "")
	require.NoError(t, err)

	assert.Equal(t, "envkey", cfg.LiveKit.APIKey)
	assert.Equal(t, "postgres://db/syncflow", cfg.Database.URL)
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing livekit credentials", func(t *testing.T) {
		_, err := Load(DevelopmentEnv, "")
		assert.Error(t, err)
	})

	t.Run("production requires session secret", func(t *testing.T) {
		t.Setenv("LIVEKIT_API_KEY", "k")
		t.Setenv("LIVEKIT_API_SECRET", "s")

		_, err := Load(ProductionEnv, "")
		assert.Error(t, err)

		t.Setenv("SESSION_SECRET", "cookie-secret")
		cfg, err := Load(ProductionEnv, "")
		require.NoError(t, err)
		assert.True(t, cfg.Env.IsProduction())
	})
}

func TestEventsDriverIsShared(t *testing.T) {
	assert.True(t, EventsConfig{Driver: "redis"}.IsShared())
	assert.True(t, EventsConfig{Driver: "nats"}.IsShared())
	assert.False(t, EventsConfig{Driver: "memory"}.IsShared())
}
