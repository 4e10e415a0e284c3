package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	App       AppConfig
	TMDB      TMDBConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Typeahead TypeaheadConfig
}

type AppConfig struct {
	Env     string
	DataDir string
}

type TMDBConfig struct {
	APIKey            string
	ReadAccessToken   string
	BaseURL           string
	ImageBaseURL      string
	Language          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	DetailCacheSize   int
	DetailCacheTTL    time.Duration
}

type StorageConfig struct {
	Driver       string
	Path         string
	PollInterval time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	TLS       bool
	KeyPrefix string
}

type LogConfig struct {
	Level string
	File  string
}

type TypeaheadConfig struct {
	Debounce time.Duration
}

// Load reads environment variables and returns a Config struct
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	dataDir := getEnv("REELDECK_HOME", defaultDataDir())

	p := &parser{}
	cfg := &Config{
		App: AppConfig{
			Env:     getEnv("REELDECK_ENV", "local"),
			DataDir: dataDir,
		},
		TMDB: TMDBConfig{
			APIKey:            getEnv("TMDB_KEY", ""),
			ReadAccessToken:   getEnv("TMDB_READ_TOKEN", ""),
			BaseURL:           getEnv("TMDB_URL", "https://api.themoviedb.org/3"),
			ImageBaseURL:      getEnv("TMDB_IMAGE_URL", "https://image.tmdb.org/t/p/w500"),
			Language:          getEnv("TMDB_LANGUAGE", "en-US"),
			Timeout:           p.duration("TMDB_TIMEOUT", 10*time.Second),
			RequestsPerSecond: p.float("TMDB_RPS", 20),
			Burst:             p.integer("TMDB_BURST", 10),
			DetailCacheSize:   p.integer("TMDB_DETAIL_CACHE_SIZE", 128),
			DetailCacheTTL:    p.duration("TMDB_DETAIL_CACHE_TTL", 30*time.Minute),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", DriverSQLite),
			Path:         getEnv("STORAGE_PATH", filepath.Join(dataDir, "profile.db")),
			PollInterval: p.duration("STORAGE_POLL_INTERVAL", 500*time.Millisecond),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        p.integer("REDIS_DB", 0),
			TLS:       getEnv("REDIS_TLS", "false") == "true",
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "reeldeck:"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", ""),
			File:  getEnv("LOG_FILE", ""),
		},
		Typeahead: TypeaheadConfig{
			Debounce: p.duration("TYPEAHEAD_DEBOUNCE", 500*time.Millisecond),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = cfg.defaultLogLevel()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateCatalog checks the TMDB credentials. Only commands that talk to
// the catalog need them, so Load does not.
func (c *Config) ValidateCatalog() error {
	if c.TMDB.APIKey == "" && c.TMDB.ReadAccessToken == "" {
		return fmt.Errorf("TMDB_KEY or TMDB_READ_TOKEN is required")
	}
	return nil
}

// Validate checks driver specific settings
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Storage.PollInterval <= 0 {
		return fmt.Errorf("STORAGE_POLL_INTERVAL must be positive")
	}
	if c.Typeahead.Debounce <= 0 {
		return fmt.Errorf("TYPEAHEAD_DEBOUNCE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parser keeps the first conversion error so Load can report it once
type parser struct {
	err error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reeldeck"
	}
	return filepath.Join(home, ".reeldeck")
}

func (c *Config) defaultLogLevel() string {
	switch {
	case c.IsProduction():
		return "warn"
	case c.IsDevelopment():
		return "debug"
	default:
		return "info"
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment returns true if running in development/local mode
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "development"
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// LogPath returns the log file location for the given day
func (c *Config) LogPath(now time.Time) string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.App.DataDir, "logs", fmt.Sprintf("reeldeck-%s.log", now.Format("2006-01-02")))
}
