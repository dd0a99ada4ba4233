package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/trackr/internal/logger"
	"github.com/spf13/viper"
)

const (
	DefaultMaxBatchSize  = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultDSN           = "logs/trackr.jsonl"
	DefaultListen        = ":9313"
	DefaultBasePath      = "/api"
)

// TrackerConfig controls whether call recording is active at all.
// When disabled, enqueue becomes a no-op and nothing is written.
type TrackerConfig struct {
	Enabled   bool   `toml:"enabled" mapstructure:"enabled"`
	SessionID string `toml:"session_id" mapstructure:"session_id"`
}

// QueueConfig tunes batching between producers and the storage flusher.
type QueueConfig struct {
	MaxBatchSize  int           `toml:"max_batch_size" mapstructure:"max_batch_size"`
	FlushInterval time.Duration `toml:"flush_interval" mapstructure:"flush_interval"`
	// HighWater triggers an early flush once the queue holds at least this
	// many records. Zero means use MaxBatchSize.
	HighWater int `toml:"high_water" mapstructure:"high_water"`
}

// StorageConfig selects where flushed batches land. The DSN scheme picks
// the backend (sqlite://, postgres://, clickhouse://, opensearch://,
// http(s)://, a plain path for JSONL, or "stdout").
type StorageConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the optional collector HTTP server.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	APIKey   string `toml:"api_key" mapstructure:"api_key"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

type Config struct {
	Tracker TrackerConfig `toml:"tracker" mapstructure:"tracker"`
	Queue   QueueConfig   `toml:"queue" mapstructure:"queue"`
	Storage StorageConfig `toml:"storage" mapstructure:"storage"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Tracker: TrackerConfig{Enabled: true},
		Queue: QueueConfig{
			MaxBatchSize:  DefaultMaxBatchSize,
			FlushInterval: DefaultFlushInterval,
		},
		Storage: StorageConfig{DSN: DefaultDSN},
		Log:     logger.Default(),
		Server: ServerConfig{
			Listen:   DefaultListen,
			BasePath: DefaultBasePath,
			Metrics:  true,
		},
	}
}

// Load reads a TOML config file and applies defaults for absent keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracker.enabled", true)
	v.SetDefault("queue.max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("queue.flush_interval", DefaultFlushInterval)
	v.SetDefault("storage.dsn", DefaultDSN)
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("server.metrics", true)
	v.SetDefault("log.slog.level", "info")
	v.SetDefault("log.slog.format", "text")
	v.SetDefault("log.slog.color", true)
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
}

func (c *Config) Validate() error {
	if c.Queue.MaxBatchSize <= 0 {
		return errors.New("queue.max_batch_size must be positive")
	}
	if c.Queue.FlushInterval <= 0 {
		return errors.New("queue.flush_interval must be positive")
	}
	if c.Queue.HighWater < 0 {
		return errors.New("queue.high_water cannot be negative")
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return errors.New("storage.dsn is required")
	}
	return nil
}
