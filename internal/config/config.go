package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/seller-scraper/internal/database"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	JobQueueSize    int
}

type ScraperConfig struct {
	BaseURL   string
	FetchMode string

	RequestDelayMin time.Duration
	RequestDelayMax time.Duration
	RequestTimeout  time.Duration
	RequestsPerSec  float64
	MaxRetries      int

	Workers             int
	MaxPages            int
	MaxConsecutiveEmpty int
	SortVariants        []string

	UserAgents            []string
	UserAgentRotateEvery  int
	MaxRequestsPerSession int
	SessionCooldown       time.Duration
	WarmupPaths           []string
	AcceptLanguage        string
	ProxyURL              string

	AutoSaveEvery int
	OutputDir     string
	ProgressFile  string
	DeepAnalysis  bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	StreamKey string

	RelayInterval  time.Duration
	RelayBatchSize int
}

type LoggingConfig struct {
	Level  string
	Format string

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
			JobQueueSize:    getIntOrDefault("SERVER_JOB_QUEUE_SIZE", 32),
		},
		Scraper: ScraperConfig{
			BaseURL:   strings.TrimRight(getEnvOrDefault("SCRAPER_BASE_URL", "https://www.amazon.co.jp"), "/"),
			FetchMode: getEnvOrDefault("SCRAPER_FETCH_MODE", FetchModeHTTP),

			RequestDelayMin: getDurationOrDefault("SCRAPER_DELAY_MIN", 3*time.Second),
			RequestDelayMax: getDurationOrDefault("SCRAPER_DELAY_MAX", 8*time.Second),
			RequestTimeout:  getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 15*time.Second),
			RequestsPerSec:  getFloatOrDefault("SCRAPER_REQUESTS_PER_SEC", 0.5),
			MaxRetries:      getIntOrDefault("SCRAPER_MAX_RETRIES", 2),

			Workers:             getIntOrDefault("SCRAPER_WORKERS", 1),
			MaxPages:            getIntOrDefault("SCRAPER_MAX_PAGES", 0),
			MaxConsecutiveEmpty: getIntOrDefault("SCRAPER_MAX_CONSECUTIVE_EMPTY", 5),
			SortVariants:        getStringSliceOrDefault("SCRAPER_SORT_VARIANTS", DefaultSortVariants()),

			UserAgents:            getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
			UserAgentRotateEvery:  getIntOrDefault("SCRAPER_UA_ROTATE_EVERY", 5),
			MaxRequestsPerSession: getIntOrDefault("SCRAPER_MAX_REQUESTS_PER_SESSION", 20),
			SessionCooldown:       getDurationOrDefault("SCRAPER_SESSION_COOLDOWN", 30*time.Second),
			WarmupPaths:           getStringSliceOrDefault("SCRAPER_WARMUP_PATHS", []string{"/gp/bestsellers", "/gp/new-releases"}),
			AcceptLanguage:        getEnvOrDefault("SCRAPER_ACCEPT_LANGUAGE", "ja-JP,ja;q=0.9,en;q=0.8,zh-CN;q=0.7,zh;q=0.6"),
			ProxyURL:              getEnvOrDefault("SCRAPER_PROXY_URL", ""),

			AutoSaveEvery: getIntOrDefault("SCRAPER_AUTO_SAVE_EVERY", 50),
			OutputDir:     getEnvOrDefault("SCRAPER_OUTPUT_DIR", "amazon_data"),
			ProgressFile:  getEnvOrDefault("SCRAPER_PROGRESS_FILE", ""),
			DeepAnalysis:  getBoolOrDefault("SCRAPER_DEEP_ANALYSIS", true),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "seller_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:   getBoolOrDefault("REDIS_ENABLED", false),
			Addr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:  getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:        getIntOrDefault("REDIS_DB", 0),
			StreamKey: getEnvOrDefault("REDIS_STREAM", "stream:seller_events"),

			RelayInterval:  getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
			RelayBatchSize: getIntOrDefault("REDIS_RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),

			File:       getEnvOrDefault("LOG_FILE", ""),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 200),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 30),
			Compress:   getBoolOrDefault("LOG_COMPRESS", true),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("SCRAPER_BASE_URL is required")
	}

	if c.Scraper.FetchMode != FetchModeHTTP && c.Scraper.FetchMode != FetchModeBrowser {
		return fmt.Errorf("SCRAPER_FETCH_MODE must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.Scraper.FetchMode)
	}

	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.RequestDelayMin > c.Scraper.RequestDelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.MaxConsecutiveEmpty < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONSECUTIVE_EMPTY must be at least 1")
	}

	if len(c.Scraper.UserAgents) == 0 {
		return fmt.Errorf("SCRAPER_USER_AGENTS must not be empty")
	}

	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("SCRAPER_MAX_PAGES cannot be negative")
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required when the database is enabled")
	}

	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED: events are relayed from the database outbox")
	}

	return nil
}

// PoolConfig maps the settings onto the database package's pool config.
func (d DatabaseConfig) PoolConfig() database.Config {
	return database.Config{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.DBName,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
	}
}

// DefaultSortVariants are the search orderings walked per result page; the
// empty string is the marketplace's default relevance order.
func DefaultSortVariants() []string {
	return []string{"", "price-asc-rank", "price-desc-rank", "review-rank", "date-desc-rank"}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
