package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, 60*time.Second, cfg.WebSocketInactivityTimeout())
	assert.EqualValues(t, 10*1024*1024, cfg.MaxUploadBytes())
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yml")
	yaml := `
server:
  port: "9090"
database:
  postgres:
    host: db.internal
    database: collab
websocket:
  inactivity_timeout_seconds: 30
upload:
  max_file_size_mb: 25
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "collab", cfg.Database.Postgres.Database)
	assert.Equal(t, 30*time.Second, cfg.WebSocketInactivityTimeout())
	assert.EqualValues(t, 25*1024*1024, cfg.MaxUploadBytes())

	// Unset values keep their defaults
	assert.Equal(t, "localhost", cfg.Database.Redis.Host)
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("POSTGRES_HOST", "env-host")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOGGING_IS_DEV", "true")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "env-host", cfg.Database.Postgres.Host)
	assert.Equal(t, 3, cfg.Database.Redis.DB)
	assert.True(t, cfg.Logging.IsDev)
}

func TestValidation(t *testing.T) {
	t.Run("MissingJWTSecret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("NonPositiveExpiration", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("JWT_EXPIRATION_SECONDS", "-5")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expiration_seconds")
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		_, err := Load("/nonexistent/config.yml")
		assert.Error(t, err)
	})
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("POSTGRES_PASSWORD", "pw")

	cfg, err := Load("")
	require.NoError(t, err)

	dsn := cfg.PostgresDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=filecollab")
	assert.Contains(t, dsn, "password=pw")
	assert.Contains(t, dsn, "sslmode=disable")
}
