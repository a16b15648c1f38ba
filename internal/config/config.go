package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAppID is returned when the configured app id is not positive.
var ErrInvalidAppID = errors.New("invalid app id: the appId must be greater than 0")

// Stacks the backend is deployed on.
const (
	StackUS = "us"
	StackEU = "eu"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the SDK and its host process.
type Config struct {
	SDK       SDKConfig       `yaml:"sdk"`
	Device    DeviceConfig    `yaml:"device"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Geo       GeoConfig       `yaml:"geo"`
	Network   NetworkConfig   `yaml:"network"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SDKConfig configures the SDK itself.
type SDKConfig struct {
	AppID      int    `yaml:"app_id"`
	APIKey     string `yaml:"api_key"`
	AppVersion string `yaml:"app_version"`
	Stack      string `yaml:"stack"`
	Language   string `yaml:"language"`

	// Endpoint overrides; empty means derive from app id and stack
	ContentURL  string `yaml:"content_url"`
	APIURL      string `yaml:"api_url"`
	IdentityURL string `yaml:"identity_url"`

	HTTPSTimeout          time.Duration `yaml:"https_timeout"`
	NewSessionInterval    time.Duration `yaml:"new_session_interval"`
	AutoShowMaxDelay      time.Duration `yaml:"auto_show_max_delay"`
	DefaultFlushFrequency time.Duration `yaml:"default_flush_frequency"`
	ManagedMode           bool          `yaml:"managed_mode"`
	AssetDownloadWorkers  int           `yaml:"asset_download_workers"`
}

// DeviceConfig describes the host device when no platform adapter supplies it.
type DeviceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Model       string `yaml:"model"`
	OS          string `yaml:"os"`
	OSVersion   string `yaml:"os_version"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	DPI         int    `yaml:"dpi"`
	Language    string `yaml:"language"`
	CountryCode string `yaml:"country_code"`
	Region      string `yaml:"region"`
	Timezone    string `yaml:"timezone"`
	AppStore    string `yaml:"app_store"`
	PublicIP    string `yaml:"public_ip"`
}

// StorageConfig selects the durable storage backend.
type StorageConfig struct {
	Driver     string        `yaml:"driver"`
	SQLitePath string        `yaml:"sqlite_path"`
	Namespace  string        `yaml:"namespace"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ArchiveConfig configures the ClickHouse archive of delivered batches.
type ArchiveConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Table    string   `yaml:"table"`
}

// GeoConfig configures the MaxMind lookup used to fill in device region.
type GeoConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// NetworkConfig configures the connectivity probe. An empty ProbeURL leaves
// connectivity to the platform.
type NetworkConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// AuthConfig guards the diagnostics endpoints with a shared token.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	SkipPaths []string `yaml:"skip_paths"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SDK: SDKConfig{
			Stack:                 StackUS,
			Language:              "English",
			HTTPSTimeout:          60 * time.Second,
			NewSessionInterval:    30 * time.Minute,
			AutoShowMaxDelay:      5 * time.Second,
			DefaultFlushFrequency: 30 * time.Second,
			AssetDownloadWorkers:  4,
		},
		Device: DeviceConfig{
			Name:     "Generic",
			Model:    "TV",
			OS:       "linux",
			Width:    1920,
			Height:   1080,
			DPI:      96,
			Language: "en-US",
			Timezone: "UTC",
			AppStore: "google",
		},
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "swrve.db",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "swrve",
			DBName:   "swrve",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Archive: ArchiveConfig{
			Addrs:    []string{"localhost:9000"},
			Database: "default",
			Username: "default",
			Table:    "swrve_delivered_events",
		},
		Geo: GeoConfig{
			DatabasePath: "/app/data/GeoLite2-City.mmdb",
		},
		Network: NetworkConfig{
			ProbeInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            "127.0.0.1:8765",
			Env:             "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			SkipPaths: []string{"/health", "/metrics"},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "swrve_sdk",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// SWRVE_CONFIG_FILE, and SWRVE_* environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("SWRVE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.SDK.AppID = getIntEnv("SWRVE_APP_ID", c.SDK.AppID)
	c.SDK.APIKey = getEnv("SWRVE_API_KEY", c.SDK.APIKey)
	c.SDK.AppVersion = getEnv("SWRVE_APP_VERSION", c.SDK.AppVersion)
	c.SDK.Stack = getEnv("SWRVE_STACK", c.SDK.Stack)
	c.SDK.Language = getEnv("SWRVE_LANGUAGE", c.SDK.Language)
	c.SDK.ContentURL = getEnv("SWRVE_CONTENT_URL", c.SDK.ContentURL)
	c.SDK.APIURL = getEnv("SWRVE_API_URL", c.SDK.APIURL)
	c.SDK.IdentityURL = getEnv("SWRVE_IDENTITY_URL", c.SDK.IdentityURL)
	c.SDK.HTTPSTimeout = getDurationEnv("SWRVE_HTTPS_TIMEOUT", c.SDK.HTTPSTimeout)
	c.SDK.NewSessionInterval = getDurationEnv("SWRVE_NEW_SESSION_INTERVAL", c.SDK.NewSessionInterval)
	c.SDK.AutoShowMaxDelay = getDurationEnv("SWRVE_AUTO_SHOW_MAX_DELAY", c.SDK.AutoShowMaxDelay)
	c.SDK.DefaultFlushFrequency = getDurationEnv("SWRVE_FLUSH_FREQUENCY", c.SDK.DefaultFlushFrequency)
	c.SDK.ManagedMode = getBoolEnv("SWRVE_MANAGED_MODE", c.SDK.ManagedMode)
	c.SDK.AssetDownloadWorkers = getIntEnv("SWRVE_ASSET_DOWNLOAD_WORKERS", c.SDK.AssetDownloadWorkers)

	c.Device.ID = getEnv("SWRVE_DEVICE_ID", c.Device.ID)
	c.Device.Name = getEnv("SWRVE_DEVICE_NAME", c.Device.Name)
	c.Device.Model = getEnv("SWRVE_DEVICE_MODEL", c.Device.Model)
	c.Device.OS = getEnv("SWRVE_DEVICE_OS", c.Device.OS)
	c.Device.OSVersion = getEnv("SWRVE_DEVICE_OS_VERSION", c.Device.OSVersion)
	c.Device.Width = getIntEnv("SWRVE_DEVICE_WIDTH", c.Device.Width)
	c.Device.Height = getIntEnv("SWRVE_DEVICE_HEIGHT", c.Device.Height)
	c.Device.DPI = getIntEnv("SWRVE_DEVICE_DPI", c.Device.DPI)
	c.Device.Language = getEnv("SWRVE_DEVICE_LANGUAGE", c.Device.Language)
	c.Device.CountryCode = getEnv("SWRVE_DEVICE_COUNTRY_CODE", c.Device.CountryCode)
	c.Device.Region = getEnv("SWRVE_DEVICE_REGION", c.Device.Region)
	c.Device.Timezone = getEnv("SWRVE_DEVICE_TIMEZONE", c.Device.Timezone)
	c.Device.AppStore = getEnv("SWRVE_DEVICE_APP_STORE", c.Device.AppStore)
	c.Device.PublicIP = getEnv("SWRVE_DEVICE_PUBLIC_IP", c.Device.PublicIP)

	c.Storage.Driver = getEnv("SWRVE_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("SWRVE_STORAGE_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.Namespace = getEnv("SWRVE_STORAGE_NAMESPACE", c.Storage.Namespace)
	c.Storage.RedisTTL = getDurationEnv("SWRVE_STORAGE_REDIS_TTL", c.Storage.RedisTTL)

	c.Database.Host = getEnv("SWRVE_DB_HOST", c.Database.Host)
	c.Database.Port = getIntEnv("SWRVE_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("SWRVE_DB_USER", c.Database.User)
	c.Database.Password = getEnv("SWRVE_DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("SWRVE_DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("SWRVE_DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxConns = getIntEnv("SWRVE_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getIntEnv("SWRVE_DB_MIN_CONNS", c.Database.MinConns)

	c.Redis.Addr = getEnv("SWRVE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("SWRVE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("SWRVE_REDIS_DB", c.Redis.DB)

	c.Archive.Enabled = getBoolEnv("SWRVE_ARCHIVE_ENABLED", c.Archive.Enabled)
	c.Archive.Addrs = getSliceEnv("SWRVE_ARCHIVE_ADDRS", c.Archive.Addrs)
	c.Archive.Database = getEnv("SWRVE_ARCHIVE_DATABASE", c.Archive.Database)
	c.Archive.Username = getEnv("SWRVE_ARCHIVE_USERNAME", c.Archive.Username)
	c.Archive.Password = getEnv("SWRVE_ARCHIVE_PASSWORD", c.Archive.Password)
	c.Archive.Table = getEnv("SWRVE_ARCHIVE_TABLE", c.Archive.Table)

	c.Geo.Enabled = getBoolEnv("SWRVE_GEO_ENABLED", c.Geo.Enabled)
	c.Geo.DatabasePath = getEnv("SWRVE_GEO_DB_PATH", c.Geo.DatabasePath)

	c.Network.ProbeURL = getEnv("SWRVE_NETWORK_PROBE_URL", c.Network.ProbeURL)
	c.Network.ProbeInterval = getDurationEnv("SWRVE_NETWORK_PROBE_INTERVAL", c.Network.ProbeInterval)

	c.Server.Enabled = getBoolEnv("SWRVE_DIAGNOSTICS_ENABLED", c.Server.Enabled)
	c.Server.Addr = getEnv("SWRVE_DIAGNOSTICS_ADDR", c.Server.Addr)
	c.Server.Env = getEnv("SWRVE_ENV", c.Server.Env)
	c.Server.ShutdownTimeout = getDurationEnv("SWRVE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.RateLimit.Enabled = getBoolEnv("SWRVE_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RPS = getFloatEnv("SWRVE_RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getIntEnv("SWRVE_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Auth.Token = getEnv("SWRVE_DEBUG_TOKEN", c.Auth.Token)
	c.Auth.Enabled = getBoolEnv("SWRVE_AUTH_ENABLED", c.Auth.Enabled || c.Auth.Token != "")
	c.Auth.SkipPaths = getSliceEnv("SWRVE_AUTH_SKIP_PATHS", c.Auth.SkipPaths)

	c.Log.Level = getEnv("SWRVE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("SWRVE_LOG_FORMAT", c.Log.Format)

	c.Metrics.Enabled = getBoolEnv("SWRVE_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("SWRVE_METRICS_PATH", c.Metrics.Path)
	c.Metrics.Namespace = getEnv("SWRVE_METRICS_NAMESPACE", c.Metrics.Namespace)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if err := c.SDK.Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("SWRVE_STORAGE_SQLITE_PATH is required for the sqlite driver")
	}
	if c.Archive.Enabled && len(c.Archive.Addrs) == 0 {
		return fmt.Errorf("SWRVE_ARCHIVE_ADDRS is required when the archive is enabled")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("SWRVE_DEBUG_TOKEN is required when auth is enabled")
	}
	return nil
}

// Validate checks the SDK settings. It is also called by the SDK constructor
// so embedders that skip Load get the same checks.
func (s SDKConfig) Validate() error {
	if s.AppID <= 0 {
		return ErrInvalidAppID
	}
	if s.APIKey == "" {
		return fmt.Errorf("SWRVE_API_KEY is required")
	}
	if s.Stack != StackUS && s.Stack != StackEU {
		return fmt.Errorf("unknown stack %q, expected %q or %q", s.Stack, StackUS, StackEU)
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
