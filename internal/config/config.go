package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration of the default tenant
	Database DatabaseConfig

	// Tenants served by this process; defaults to one tenant using Database
	Tenants []TenantConfig

	// Save pipeline configuration
	Save SaveConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Published-page cache configuration
	Cache CacheConfig

	// CDN purge configuration
	CDN CDNConfig

	// Logging configuration
	Log LogConfig

	MigrationsPath string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	SSLMode      string        `yaml:"sslmode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
}

// TenantConfig is one tenant database
type TenantConfig struct {
	Name     string         `yaml:"name"`
	Database DatabaseConfig `yaml:"database"`
}

// SaveConfig bounds the save transaction
type SaveConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

// SchedulerConfig controls the version activation sweep
type SchedulerConfig struct {
	Enabled              bool
	Spec                 string // robfig/cron spec, e.g. "@every 10m"
	MaxConcurrentTenants int
	ArticleTimeout       time.Duration
}

// CacheConfig holds Redis settings for the published-page cache
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PageTTL       time.Duration
}

// CDNConfig lists purge webhooks
type CDNConfig struct {
	PurgeEndpoints []string // "name=url" pairs
	Token          string
	Timeout        time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string
	Format  string // "json" or "pretty"
	Service string
}

// Load reads configuration from environment variables, after loading .env when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "cms"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Save: SaveConfig{
			Timeout:     getDurationEnv("SAVE_TIMEOUT", 30*time.Second),
			MaxAttempts: getIntEnv("SAVE_MAX_ATTEMPTS", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getBoolEnv("SCHEDULER_ENABLED", true),
			Spec:                 getEnv("SCHEDULER_SPEC", "@every 10m"),
			MaxConcurrentTenants: getIntEnv("SCHEDULER_MAX_CONCURRENT_TENANTS", 4),
			ArticleTimeout:       getDurationEnv("SCHEDULER_ARTICLE_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
			PageTTL:       getDurationEnv("PAGE_CACHE_TTL", 0),
		},
		CDN: CDNConfig{
			PurgeEndpoints: getListEnv("CDN_PURGE_ENDPOINTS"),
			Token:          getEnv("CDN_TOKEN", ""),
			Timeout:        getDurationEnv("CDN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("SERVICE_NAME", "cms-article-engine"),
		},
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	tenants, err := loadTenants(getEnv("TENANTS_FILE", ""), cfg.Database)
	if err != nil {
		return nil, err
	}
	cfg.Tenants = tenants

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Tenants) == 0 {
		return fmt.Errorf("at least one tenant is required")
	}
	seen := make(map[string]bool, len(c.Tenants))
	for _, t := range c.Tenants {
		if t.Name == "" {
			return fmt.Errorf("tenant name is required")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tenant %q", t.Name)
		}
		seen[t.Name] = true
		if t.Database.Host == "" {
			return fmt.Errorf("tenant %s: DB_HOST is required", t.Name)
		}
		if t.Database.Name == "" {
			return fmt.Errorf("tenant %s: DB_NAME is required", t.Name)
		}
	}
	if c.Save.MaxAttempts < 1 {
		return fmt.Errorf("SAVE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return fmt.Errorf("SCHEDULER_SPEC is required when the scheduler is enabled")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// tenantsFile is the YAML layout of TENANTS_FILE
type tenantsFile struct {
	Tenants []TenantConfig `yaml:"tenants"`
}

// loadTenants reads the tenant list; without a file the default database is the only tenant.
// Unset pool settings in the file inherit the defaults.
func loadTenants(path string, defaults DatabaseConfig) ([]TenantConfig, error) {
	if path == "" {
		return []TenantConfig{{Name: "default", Database: defaults}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}
	return parseTenants(data, defaults)
}

func parseTenants(data []byte, defaults DatabaseConfig) ([]TenantConfig, error) {
	var file tenantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenants file: %w", err)
	}

	for i := range file.Tenants {
		db := &file.Tenants[i].Database
		if db.Port == "" {
			db.Port = defaults.Port
		}
		if db.SSLMode == "" {
			db.SSLMode = defaults.SSLMode
		}
		if db.MaxOpenConns == 0 {
			db.MaxOpenConns = defaults.MaxOpenConns
		}
		if db.MaxIdleConns == 0 {
			db.MaxIdleConns = defaults.MaxIdleConns
		}
		if db.MaxLifetime == 0 {
			db.MaxLifetime = defaults.MaxLifetime
		}
	}
	return file.Tenants, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
