package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the offline gateway
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Upstream     UpstreamConfig     `toml:"upstream"`
	Storage      StorageConfig      `toml:"storage"`
	Cache        CacheConfig        `toml:"cache"`
	Sync         SyncConfig         `toml:"sync"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Control      ControlConfig      `toml:"control"`
	Log          LogConfig          `toml:"log"`
}

// ServerConfig holds the gateway listener settings
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

// UpstreamConfig holds the quiz server the gateway fronts
type UpstreamConfig struct {
	URL     string `toml:"url"`
	Timeout int    `toml:"timeout"`
}

// StorageConfig selects and configures the bucket backend
type StorageConfig struct {
	Driver  string      `toml:"driver"`
	DataDir string      `toml:"data_dir"`
	Redis   RedisConfig `toml:"redis"`
}

// RedisConfig holds Redis connection info for the redis driver
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CacheConfig holds bucket naming, install manifest and eviction settings
type CacheConfig struct {
	Prefix      string       `toml:"prefix"`
	Version     string       `toml:"version"`
	Manifest    []string     `toml:"manifest"`
	SkipWaiting bool         `toml:"skip_waiting"`
	Static      BucketLimits `toml:"static"`
	Runtime     BucketLimits `toml:"runtime"`
	QuizData    BucketLimits `toml:"quiz_data"`
}

// BucketLimits bounds a single bucket. Zero values mean unbounded.
type BucketLimits struct {
	MaxEntries int `toml:"max_entries"`
	TTLSeconds int `toml:"ttl_seconds"`
}

// TTL returns the configured time-to-live
func (b BucketLimits) TTL() time.Duration {
	return time.Duration(b.TTLSeconds) * time.Second
}

// SyncConfig holds deferred submission replay settings
type SyncConfig struct {
	Tag              string `toml:"tag"`
	CleanupMode      string `toml:"cleanup_mode"`
	MaxAttempts      int    `toml:"max_attempts"`
	BaseDelaySeconds int    `toml:"base_delay_seconds"`
	MaxDelaySeconds  int    `toml:"max_delay_seconds"`
	OnReconnect      bool   `toml:"on_reconnect"`
	PreloadWorkers   int    `toml:"preload_workers"`
}

// ConnectivityConfig holds the upstream probe settings
type ConnectivityConfig struct {
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
}

// ControlConfig holds control-surface auth settings
type ControlConfig struct {
	Secret string `toml:"secret"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Cleanup modes for successful online submissions
const (
	CleanupSupersede = "supersede"
	CleanupOff       = "off"
)

// Load loads configuration from TOML file, then applies .env and environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A missing .env is the normal case
	_ = godotenv.Load()
	config.applyEnv()

	config.setDefaults()

	return &config, nil
}

// LoadOrDefault loads path, or starts from DefaultConfig when the file does not exist.
// .env and environment overrides apply either way.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = DefaultConfig()
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg, nil
}

// Save saves configuration to TOML file
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnsureDirs creates necessary directories
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDir, err)
	}
	return nil
}

// DatabasePath returns the SQLite bucket database location
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "buckets.db")
}

// Addr returns the gateway listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL returns the URL a local client uses to reach the gateway
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEDREF_UPSTREAM_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("MEDREF_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("MEDREF_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("MEDREF_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("MEDREF_CONTROL_SECRET"); v != "" {
		c.Control.Secret = v
	}
	if v := os.Getenv("MEDREF_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MEDREF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Upstream.URL == "" {
		c.Upstream.URL = "http://127.0.0.1:5000"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 30
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "mla-quiz"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if len(c.Cache.Manifest) == 0 {
		c.Cache.Manifest = []string{"/", "/static/js/v1/app.js", "/static/manifest.json"}
	}
	if c.Cache.Runtime.MaxEntries == 0 {
		c.Cache.Runtime.MaxEntries = 200
	}
	if c.Cache.QuizData.MaxEntries == 0 {
		c.Cache.QuizData.MaxEntries = 500
	}
	if c.Sync.Tag == "" {
		c.Sync.Tag = "quiz-submission"
	}
	if c.Sync.CleanupMode == "" {
		c.Sync.CleanupMode = CleanupSupersede
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 8
	}
	if c.Sync.BaseDelaySeconds == 0 {
		c.Sync.BaseDelaySeconds = 30
	}
	if c.Sync.MaxDelaySeconds == 0 {
		c.Sync.MaxDelaySeconds = 3600
	}
	if c.Sync.PreloadWorkers == 0 {
		c.Sync.PreloadWorkers = 4
	}
	if c.Connectivity.ProbeIntervalSeconds == 0 {
		c.Connectivity.ProbeIntervalSeconds = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Sync.OnReconnect = true
	cfg.Cache.SkipWaiting = true
	cfg.setDefaults()
	return cfg
}
