package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the jobtrack server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ExecService ExecServiceConfig
	AppSpecs    AppSpecConfig
	NATS        NATSConfig
	SystemVars  map[string]string
}

type ServerConfig struct {
	Port      int
	Env       string
	RateLimit int // requests per minute per client
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

type ExecServiceConfig struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PollInterval time.Duration
}

type AppSpecConfig struct {
	Dir string
}

// NATSConfig configures state-change events. An empty URL disables publishing.
type NATSConfig struct {
	URL string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	vars, err := parseSystemVars(os.Getenv("JOBTRACK_SYSTEM_VARS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      envInt("JOBTRACK_PORT", 8080),
			Env:       envString("JOBTRACK_ENV", "development"),
			RateLimit: envInt("JOBTRACK_RATE_LIMIT", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			StatusTTL: envDuration("JOBTRACK_STATUS_TTL", 30*time.Minute),
		},
		ExecService: loadExecService(),
		AppSpecs: AppSpecConfig{
			Dir: envString("APPSPEC_DIR", "./appspecs"),
		},
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		SystemVars: vars,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadExecService reads only the execution service settings. The CLI uses it so
// it does not need database or cache configuration.
func LoadExecService() (*ExecServiceConfig, error) {
	cfg := loadExecService()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadExecService() ExecServiceConfig {
	return ExecServiceConfig{
		BaseURL:      strings.TrimRight(os.Getenv("EXECSVC_BASE_URL"), "/"),
		Token:        os.Getenv("EXECSVC_TOKEN"),
		Timeout:      envDuration("EXECSVC_TIMEOUT", 30*time.Second),
		PollInterval: envDuration("JOBTRACK_POLL_INTERVAL", 2*time.Second),
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Redis.StatusTTL <= 0 {
		return fmt.Errorf("JOBTRACK_STATUS_TTL must be positive, got %s", c.Redis.StatusTTL)
	}

	if err := c.ExecService.validate(); err != nil {
		return err
	}

	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("JOBTRACK_RATE_LIMIT must be positive, got %d", c.Server.RateLimit)
	}

	if c.NATS.URL != "" && !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.NATS.URL)
	}

	return nil
}

func (c *ExecServiceConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("EXECSVC_BASE_URL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("EXECSVC_BASE_URL must start with http:// or https://, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("EXECSVC_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("JOBTRACK_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}

// parseSystemVars parses "name=value,name=value".
func parseSystemVars(s string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("JOBTRACK_SYSTEM_VARS entries must be name=value, got %q", pair)
		}
		vars[name] = strings.TrimSpace(value)
	}
	return vars, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
