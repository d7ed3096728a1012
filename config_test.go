package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(kv map[string]string) func(string) string {
	return func(key string) string { return kv[key] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Environment(t *testing.T) {
	cfg, err := LoadConfig(nil, envMap(map[string]string{
		"CHAT_ADDR":             ":9090",
		"CHAT_DB_DRIVER":        DriverPostgres,
		"CHAT_DB_DSN":           "postgres://chat@localhost/chat",
		"CHAT_SESSION_BACKEND":  SessionBackendRedis,
		"CHAT_REDIS_ADDR":       "redis:6379",
		"CHAT_REDIS_PASSWORD":   "secret",
		"CHAT_LOG_LEVEL":        "debug",
		"CHAT_ALLOWED_ORIGINS":  "http://a.example, http://b.example,",
		"CHAT_MAX_MESSAGE_SIZE": "1024",
		"CHAT_HEALTH_SCHEDULE":  "@every 1m",
		"CHAT_SHUTDOWN_TIMEOUT": "3s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://chat@localhost/chat", cfg.DBDSN)
	assert.Equal(t, SessionBackendRedis, cfg.SessionBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "secret", cfg.RedisPassword)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, "@every 1m", cfg.HealthSchedule)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig_PositionalDSN(t *testing.T) {
	cfg, err := LoadConfig([]string{"other.db"}, envMap(map[string]string{"CHAT_DB_DSN": "env.db"}))
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.DBDSN)
}

func TestLoadConfig_InvalidNumbersKeepDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil, envMap(map[string]string{
		"CHAT_MAX_MESSAGE_SIZE": "-5",
		"CHAT_SHUTDOWN_TIMEOUT": "soon",
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, DefaultConfig().ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadConfig_RejectsUnknownBackends(t *testing.T) {
	_, err := LoadConfig(nil, envMap(map[string]string{"CHAT_DB_DRIVER": "mysql"}))
	assert.Error(t, err)

	_, err = LoadConfig(nil, envMap(map[string]string{"CHAT_SESSION_BACKEND": "memcached"}))
	assert.Error(t, err)
}
