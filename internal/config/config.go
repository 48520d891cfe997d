package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the order-bump service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Analytics AnalyticsConfig
	Catalog   CatalogConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AnalyticsConfig selects the analytics store backend and tunes the
// impression dedup window.
type AnalyticsConfig struct {
	// Driver is "postgres" (default) or "clickhouse".
	Driver string
	// ClickHouse settings, used when Driver is "clickhouse".
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	// DedupWindow is the trailing window within which a (bump, session)
	// pair produces at most one impression row.
	DedupWindow time.Duration
}

// CatalogConfig configures the WooCommerce product catalog client.
type CatalogConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

type AuthConfig struct {
	Enabled   bool
	AdminKey  string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled       bool
	CheckoutRPS   float64
	CheckoutBurst int
	AdminRPS      float64
	AdminBurst    int
}

// SessionConfig controls the checkout session cookie.
type SessionConfig struct {
	CookieName string
	NonceName  string
	TTL        time.Duration
	Secure     bool
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("OB_HTTP_ADDR", ":8080"),
			Env:             getEnv("OB_ENV", "development"),
			ShutdownTimeout: getDurationEnv("OB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("OB_DB_HOST", "localhost"),
			Port:     getIntEnv("OB_DB_PORT", 5432),
			User:     getEnv("OB_DB_USER", "orderbump"),
			Password: getEnv("OB_DB_PASSWORD", "orderbump_secret"),
			DBName:   getEnv("OB_DB_NAME", "orderbump"),
			SSLMode:  getEnv("OB_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("OB_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("OB_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("OB_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("OB_REDIS_PASSWORD", ""),
			DB:       getIntEnv("OB_REDIS_DB", 0),
		},
		Analytics: AnalyticsConfig{
			Driver:             getEnv("OB_ANALYTICS_DRIVER", "postgres"),
			ClickHouseAddr:     getEnv("OB_CLICKHOUSE_ADDR", "localhost:9000"),
			ClickHouseDatabase: getEnv("OB_CLICKHOUSE_DB", "orderbump"),
			ClickHouseUser:     getEnv("OB_CLICKHOUSE_USER", "default"),
			ClickHousePassword: getEnv("OB_CLICKHOUSE_PASSWORD", ""),
			DedupWindow:        getDurationEnv("OB_IMPRESSION_DEDUP_WINDOW", time.Hour),
		},
		Catalog: CatalogConfig{
			BaseURL:        getEnv("OB_WC_URL", ""),
			ConsumerKey:    getEnv("OB_WC_KEY", ""),
			ConsumerSecret: getEnv("OB_WC_SECRET", ""),
			Timeout:        getDurationEnv("OB_WC_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("OB_AUTH_ENABLED", true),
			AdminKey:  getEnv("OB_ADMIN_API_KEY", ""),
			SkipPaths: getSliceEnv("OB_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/checkout/"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBoolEnv("OB_RATE_LIMIT_ENABLED", true),
			CheckoutRPS:   getFloatEnv("OB_RATE_LIMIT_CHECKOUT_RPS", 500),
			CheckoutBurst: getIntEnv("OB_RATE_LIMIT_CHECKOUT_BURST", 100),
			AdminRPS:      getFloatEnv("OB_RATE_LIMIT_ADMIN_RPS", 50),
			AdminBurst:    getIntEnv("OB_RATE_LIMIT_ADMIN_BURST", 10),
		},
		Session: SessionConfig{
			CookieName: getEnv("OB_SESSION_COOKIE", "ob_session"),
			NonceName:  getEnv("OB_NONCE_HEADER", "X-OB-Nonce"),
			TTL:        getDurationEnv("OB_SESSION_TTL", time.Hour),
			Secure:     getBoolEnv("OB_SESSION_SECURE", false),
		},
		Log: LogConfig{
			Level:  getEnv("OB_LOG_LEVEL", "info"),
			Format: getEnv("OB_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("OB_METRICS_ENABLED", true),
			Path:    getEnv("OB_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.AdminKey == "" {
		return fmt.Errorf("OB_ADMIN_API_KEY is required when auth is enabled")
	}
	switch c.Analytics.Driver {
	case "postgres", "clickhouse":
	default:
		return fmt.Errorf("OB_ANALYTICS_DRIVER must be postgres or clickhouse, got %q", c.Analytics.Driver)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
