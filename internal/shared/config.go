package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// APIKeyEnv overrides [RecordStoreConfig.APIKey] when set.
const APIKeyEnv = "OPSYNC_API_KEY"

// MaxRecordsPerRequest is the record store's limit on records in one write,
// and so the largest usable batch.chunk_size.
const MaxRecordsPerRequest = 10

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	RecordStore RecordStoreConfig            `toml:"record_store"`
	Batch       BatchConfig                  `toml:"batch"`
	Views       map[string]map[string]string `toml:"views"`
	Cache       CacheConfig                  `toml:"cache"`
	Database    DatabaseConfig               `toml:"database"`
	Server      ServerConfig                 `toml:"server"`
}

// RecordStoreConfig contains the remote record store endpoint and credentials.
type RecordStoreConfig struct {
	BaseURL   string            `toml:"base_url"`
	WebURL    string            `toml:"web_url"` // browser address prefix of views
	BaseID    string            `toml:"base_id"`
	APIKey    string            `toml:"api_key"`
	RateLimit float64           `toml:"rate_limit"` // requests per second
	TimeoutMS int               `toml:"timeout_ms"`
	Tables    map[string]string `toml:"tables"` // logical name -> table name
}

// BatchConfig tunes the bulk update coordinator.
type BatchConfig struct {
	ChunkSize         int  `toml:"chunk_size"`
	MaxRetries        int  `toml:"max_retries"`
	BaseDelayMS       int  `toml:"base_delay_ms"`
	FanOut            int  `toml:"fan_out"`
	RetryServerErrors bool `toml:"retry_server_errors"`
	RetryTimeouts     bool `toml:"retry_timeouts"`
	HonorRetryAfter   bool `toml:"honor_retry_after"`
}

// CacheConfig selects the view count cache backend.
type CacheConfig struct {
	Backend    string `toml:"backend"` // memory or redis
	Addr       string `toml:"addr"`
	DB         int    `toml:"db"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.RecordStore.APIKey = key
	}
}

// Validate rejects configurations the batch layer cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Batch.ChunkSize <= 0:
		return fmt.Errorf("%w: batch.chunk_size must be positive, got %d", ErrInvalidConfig, c.Batch.ChunkSize)
	case c.Batch.ChunkSize > MaxRecordsPerRequest:
		return fmt.Errorf("%w: batch.chunk_size %d exceeds the store limit of %d records per request",
			ErrInvalidConfig, c.Batch.ChunkSize, MaxRecordsPerRequest)
	case c.Batch.MaxRetries <= 0:
		return fmt.Errorf("%w: batch.max_retries must be positive, got %d", ErrInvalidConfig, c.Batch.MaxRetries)
	case c.Batch.BaseDelayMS < 0:
		return fmt.Errorf("%w: batch.base_delay_ms must not be negative", ErrInvalidConfig)
	case c.Batch.FanOut <= 0:
		return fmt.Errorf("%w: batch.fan_out must be positive, got %d", ErrInvalidConfig, c.Batch.FanOut)
	case c.RecordStore.RateLimit < 0:
		return fmt.Errorf("%w: record_store.rate_limit must not be negative", ErrInvalidConfig)
	}

	switch c.Cache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	return nil
}

// BaseDelay returns the configured backoff base delay.
func (b BatchConfig) BaseDelay() time.Duration {
	return time.Duration(b.BaseDelayMS) * time.Millisecond
}

// Timeout returns the per-request timeout, zero meaning none.
func (r RecordStoreConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Table resolves a logical table name, falling back to the name itself.
func (r RecordStoreConfig) Table(name string) string {
	if t, ok := r.Tables[name]; ok && t != "" {
		return t
	}
	return name
}
