// Package config loads the pipeline's TOML configuration file, using
// viper the way luxfi-evm's command-line tooling loads its own config.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration document.
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
}

// ClientConfig describes the upstream node endpoint.
type ClientConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// WSURL returns the websocket subscription URL, with the API key
// attached as a query parameter when present.
func (c ClientConfig) WSURL() string {
	if c.APIKey != "" {
		return fmt.Sprintf("wss://%s?api-key=%s", c.URL, c.APIKey)
	}
	return fmt.Sprintf("wss://%s", c.URL)
}

// HTTPURL returns the RPC request URL, with the API key attached as a
// query parameter when present.
func (c ClientConfig) HTTPURL() string {
	if c.APIKey != "" {
		return fmt.Sprintf("https://%s?api-key=%s", c.URL, c.APIKey)
	}
	return fmt.Sprintf("https://%s", c.URL)
}

// DatabaseConfig describes the relational store connection.
type DatabaseConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     uint16 `mapstructure:"port"`
	DBName   string `mapstructure:"db_name"`
	PoolSize int32  `mapstructure:"pool_size"`
}

// DSN renders the connection string pgxpool.ParseConfig expects.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// ServerConfig describes the read-path HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port uint16 `mapstructure:"port"`
}

// Addr returns the host:port the HTTP server should bind.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProcessorConfig sizes the ProcessorPool.
type ProcessorConfig struct {
	WorkerThreads int `mapstructure:"worker_threads"`
}

// StorageConfig sizes the WriterPool.
type StorageConfig struct {
	WorkerThreads int `mapstructure:"worker_threads"`
}

// FetcherConfig sizes the FetcherPool and tunes its retry/timeout/slot
// offset policy.
type FetcherConfig struct {
	WorkerThreads int           `mapstructure:"worker_threads"`
	SlotOffset    uint64        `mapstructure:"slot_offset"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelayMs  int           `mapstructure:"retry_delay_ms"`
	TimeoutSecs   int           `mapstructure:"timeout_secs"`
	Scaling       ScalingConfig `mapstructure:"scaling"`
}

// ScalingConfig mirrors the original implementation's
// WorkerScalingConfig (original_source/src/worker/worker_manager.rs):
// scale-up/down thresholds and worker bounds for a dynamically-sized
// pool. workerpool.Pool only ever runs in fixed-size mode, so these
// fields are parsed (without validation) but otherwise unused — reserved for
// a future autoscaling pool implementation.
type ScalingConfig struct {
	ScaleUpThreshold   int           `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold int           `mapstructure:"scale_down_threshold"`
	MinWorkers         int           `mapstructure:"min_workers"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	Interval           time.Duration `mapstructure:"interval"`
}

// RetryDelay is RetryDelayMs as a time.Duration.
func (c FetcherConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Timeout is TimeoutSecs as a time.Duration.
func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetcher.worker_threads", 4)
	v.SetDefault("fetcher.slot_offset", 2)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.retry_delay_ms", 500)
	v.SetDefault("fetcher.timeout_secs", 10)
	v.SetDefault("processor.worker_threads", 4)
	v.SetDefault("storage.worker_threads", 4)
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}
