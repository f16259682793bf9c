package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and only here
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// PriceCache selects the quarterly price cache backend: postgres, redis or layered
	PriceCache string

	// External feeds
	Feeds FeedsConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FeedsConfig holds settings for the fundamentals and daily price feeds
type FeedsConfig struct {
	StatementDogBaseURL string
	CMoneyBaseURL       string
	CMoneyChipsURL      string
	CMoneyAccount       string
	CMoneyPassword      string // hashed, as the CMoney login form expects
	PriceTimezone       string
	RatePerSecond       float64
	Workers             int
}

// Price cache backends
const (
	PriceCachePostgres = "postgres"
	PriceCacheRedis    = "redis"
	PriceCacheLayered  = "layered"
)

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		PriceCache: getEnv("PRICE_CACHE", PriceCachePostgres),

		Feeds: FeedsConfig{
			StatementDogBaseURL: getEnv("STATEMENTDOG_BASE_URL", "https://statementdog.com"),
			CMoneyBaseURL:       getEnv("CMONEY_BASE_URL", "https://api.cmoney.tw"),
			CMoneyChipsURL:      getEnv("CMONEY_CHIPS_URL", "http://datasv.cmoney.tw:5000"),
			CMoneyAccount:       getEnv("CMONEY_ACCOUNT", ""),
			CMoneyPassword:      getEnv("CMONEY_HASHED_PASSWORD", ""),
			PriceTimezone:       getEnv("PRICE_TIMEZONE", "Asia/Taipei"),
			RatePerSecond:       getEnvAsFloat("FETCH_RATE_PER_SEC", 1),
			Workers:             getEnvAsInt("FETCH_WORKERS", 4),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.PriceCache {
	case PriceCachePostgres:
	case PriceCacheRedis, PriceCacheLayered:
		if !c.Redis.Enabled {
			return fmt.Errorf("PRICE_CACHE=%s requires REDIS_ENABLED=true", c.PriceCache)
		}
	default:
		return fmt.Errorf("PRICE_CACHE must be one of: postgres, redis, layered")
	}

	if _, err := time.LoadLocation(c.Feeds.PriceTimezone); err != nil {
		return fmt.Errorf("PRICE_TIMEZONE: %w", err)
	}

	return nil
}

// Location returns the timezone daily candles are stamped in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Feeds.PriceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
