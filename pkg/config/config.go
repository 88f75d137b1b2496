package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig

	// Domain
	Refresh  RefreshConfig
	News     NewsConfig
	Screener ScreenerConfig
	History  HistoryConfig
	Analyzer AnalyzerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// StoreConfig selects where the aggregate snapshot lives
type StoreConfig struct {
	Backend    string // file, postgres, sqlite
	DataFile   string
	MetaFile   string
	SQLitePath string
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

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RefreshConfig controls the gathering step and its schedule
type RefreshConfig struct {
	// Command overrides the gathering step. Empty means "<self> gather".
	Command    string
	Timeout    time.Duration
	StaleAfter time.Duration
	Schedule   string // cron with seconds, empty disables
	OnStartup  bool
}

// NewsConfig holds news source and enrichment cache settings
type NewsConfig struct {
	BaseURL   string
	Limit     int
	Lookback  time.Duration
	CacheTTL  time.Duration
	Timeout   time.Duration
	Workers   int
	RateLimit int // requests per second, 0 disables
}

// ScreenerConfig holds TradingView scanner settings
type ScreenerConfig struct {
	BaseURL     string
	Market      string
	Exchange    string
	Limit       int
	FiltersFile string
}

// HistoryConfig holds price history source settings
type HistoryConfig struct {
	BaseURL  string
	Range    string
	Interval string
	Workers  int
}

// AnalyzerConfig holds pattern analytics settings
type AnalyzerConfig struct {
	Segments int
	MinZones int
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "5000"),
		Env:  getEnv("ENV", "development"),

		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("STORE_BACKEND", "file")),
			DataFile: getEnv("DATA_FILE", filepath.Join("data", "vcp_stocks_cache.json")),
			MetaFile: getEnv("META_FILE", filepath.Join("data", "last_updated.json")),

			SQLitePath: getEnv("SQLITE_PATH", filepath.Join("data", "tightzone.db")),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
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

		Refresh: RefreshConfig{
			Command:    getEnv("GATHER_COMMAND", ""),
			Timeout:    getEnvAsDuration("REFRESH_TIMEOUT", "10m"),
			StaleAfter: getEnvAsDuration("REFRESH_STALE_AFTER", "5m"),
			Schedule:   getEnv("REFRESH_SCHEDULE", "0 30 16 * * MON-FRI"),
			OnStartup:  getEnvAsBool("REFRESH_ON_STARTUP", false),
		},

		News: NewsConfig{
			BaseURL:   getEnv("NEWS_BASE_URL", "https://query1.finance.yahoo.com"),
			Limit:     getEnvAsInt("NEWS_LIMIT", 3),
			Lookback:  getEnvAsDuration("NEWS_LOOKBACK", "72h"),
			CacheTTL:  getEnvAsDuration("NEWS_CACHE_TTL", "30m"),
			Timeout:   getEnvAsDuration("NEWS_TIMEOUT", "5s"),
			Workers:   getEnvAsInt("NEWS_WORKERS", 8),
			RateLimit: getEnvAsInt("NEWS_RATE_LIMIT", 10),
		},

		Screener: ScreenerConfig{
			BaseURL:     getEnv("SCREENER_BASE_URL", "https://scanner.tradingview.com"),
			Market:      getEnv("SCREENER_MARKET", "america"),
			Exchange:    getEnv("SCREENER_EXCHANGE", ""),
			Limit:       getEnvAsInt("SCREENER_LIMIT", 50),
			FiltersFile: getEnv("SCREENER_FILTERS_FILE", ""),
		},

		History: HistoryConfig{
			BaseURL:  getEnv("HISTORY_BASE_URL", "https://query1.finance.yahoo.com"),
			Range:    getEnv("HISTORY_RANGE", "6mo"),
			Interval: getEnv("HISTORY_INTERVAL", "1d"),
			Workers:  getEnvAsInt("HISTORY_WORKERS", 4),
		},

		Analyzer: AnalyzerConfig{
			Segments: getEnvAsInt("ANALYZER_SEGMENTS", 4),
			MinZones: getEnvAsInt("ANALYZER_MIN_ZONES", 2),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.DataFile == "" || c.Store.MetaFile == "" {
			return fmt.Errorf("DATA_FILE and META_FILE are required for the file store")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: file, postgres, sqlite")
	}

	if c.News.Limit <= 0 {
		return fmt.Errorf("NEWS_LIMIT must be positive")
	}
	if c.News.CacheTTL <= 0 || c.News.Lookback <= 0 {
		return fmt.Errorf("NEWS_CACHE_TTL and NEWS_LOOKBACK must be positive")
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("REFRESH_TIMEOUT must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

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
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
