package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	DBDriver        string
	DBDSN           string
	SessionBackend  string
	RedisAddr       string
	RedisPassword   string
	LogLevel        string
	AllowedOrigins  []string
	MaxMessageSize  int64
	HealthSchedule  string
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		DBDriver:        DriverSQLite,
		DBDSN:           "chat.db",
		SessionBackend:  SessionBackendSQL,
		RedisAddr:       "localhost:6379",
		LogLevel:        "info",
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  64 * 1024,
		HealthSchedule:  "@every 30s",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig applies CHAT_* variables from getenv over the defaults. A first
// positional argument overrides the database DSN.
func LoadConfig(args []string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("CHAT_ADDR", &cfg.Addr)
	setString("CHAT_DB_DRIVER", &cfg.DBDriver)
	setString("CHAT_DB_DSN", &cfg.DBDSN)
	setString("CHAT_SESSION_BACKEND", &cfg.SessionBackend)
	setString("CHAT_REDIS_ADDR", &cfg.RedisAddr)
	setString("CHAT_LOG_LEVEL", &cfg.LogLevel)
	setString("CHAT_HEALTH_SCHEDULE", &cfg.HealthSchedule)
	cfg.RedisPassword = getenv("CHAT_REDIS_PASSWORD")

	if v := getenv("CHAT_ALLOWED_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	// invalid numbers keep the default
	if v := getenv("CHAT_MAX_MESSAGE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxMessageSize = n
		}
	}
	if v := getenv("CHAT_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		}
	}

	if len(args) > 0 && args[0] != "" {
		cfg.DBDSN = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	switch c.SessionBackend {
	case SessionBackendSQL, SessionBackendRedis:
	default:
		return fmt.Errorf("unsupported session backend %q", c.SessionBackend)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("addr=%s db=%s sessions=%s log=%s origins=%s",
		c.Addr, c.DBDriver, c.SessionBackend, c.LogLevel, strings.Join(c.AllowedOrigins, ","))
}
