package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
	"github.com/SmitUplenchwar2687/quota/internal/logging"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

// Config is the top-level configuration for a quota process.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Limiter LimiterConfig `json:"limiter" yaml:"limiter"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LimiterConfig holds the limiter parameters and the default amount the
// HTTP adapter consumes per request.
type LimiterConfig struct {
	Algorithm      limiter.Algorithm `json:"algorithm" yaml:"algorithm"`
	Duration       time.Duration     `json:"duration" yaml:"duration"`
	Points         int64             `json:"points" yaml:"points"`
	Prefix         string            `json:"prefix" yaml:"prefix"`
	BucketInterval time.Duration     `json:"bucket_interval" yaml:"bucket_interval"`
	Amount         int64             `json:"amount" yaml:"amount"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	Backend string              `json:"backend" yaml:"backend"`
	Memory  MemoryConfig        `json:"memory" yaml:"memory"`
	Redis   storage.RedisConfig `json:"redis" yaml:"redis"`
}

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Limiter: LimiterConfig{
			Algorithm: limiter.AlgorithmSlidingWindowCounter,
			Duration:  time.Minute,
			Points:    10,
			Prefix:    limiter.DefaultKeyPrefix,
			Amount:    1,
		},
		Storage: StorageConfig{
			Backend: storage.BackendMemory,
			Memory: MemoryConfig{
				CleanupInterval: time.Minute,
			},
			Redis: storage.RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	l := c.Limiter
	if l.Duration <= 0 {
		return fmt.Errorf("limiter.duration must be positive, got %s", l.Duration)
	}
	if l.Points <= 0 {
		return fmt.Errorf("limiter.points must be positive, got %d", l.Points)
	}
	if l.Amount <= 0 {
		return fmt.Errorf("limiter.amount must be positive, got %d", l.Amount)
	}
	if l.BucketInterval < 0 {
		return fmt.Errorf("limiter.bucket_interval must not be negative, got %s", l.BucketInterval)
	}
	// The selector falls back to the sliding window counter for unknown
	// names; a config file naming one is a typo worth reporting.
	if l.Algorithm != "" && !l.Algorithm.Valid() {
		return fmt.Errorf("unknown algorithm %q, must be one of: %s", l.Algorithm, algorithmNames())
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
		if c.Storage.Memory.CleanupInterval < 0 {
			return fmt.Errorf("storage.memory.cleanup_interval must not be negative, got %s", c.Storage.Memory.CleanupInterval)
		}
	case storage.BackendRedis:
		r := c.Storage.Redis
		if r.Cluster && len(r.ClusterNodes) == 0 {
			return fmt.Errorf("storage.redis.cluster_nodes is required when cluster=true")
		}
		if !r.Cluster && (r.Host == "" || r.Port <= 0) {
			return fmt.Errorf("storage.redis.host and storage.redis.port are required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be one of: %s, %s", c.Storage.Backend, storage.BackendMemory, storage.BackendRedis)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("unknown log format %q, must be one of: %s, %s", c.Log.Format, logging.FormatJSON, logging.FormatConsole)
	}
	return nil
}

func algorithmNames() string {
	names := make([]string, 0, 3)
	for _, a := range limiter.Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

// BuildLimiterConfig builds the core limiter config for store.
func (c Config) BuildLimiterConfig(store storage.Store) limiter.Config {
	return limiter.Config{
		Algorithm:      c.Limiter.Algorithm,
		Duration:       c.Limiter.Duration,
		Points:         c.Limiter.Points,
		KeyPrefix:      c.Limiter.Prefix,
		BucketInterval: c.Limiter.BucketInterval,
		Store:          store,
	}
}

// LoadFile reads a JSON or YAML config file and merges it with defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Use a raw intermediate struct to handle duration parsing.
	var raw rawConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if err := raw.mergeInto(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// rawConfig is the file representation with string durations.
type rawConfig struct {
	Server struct {
		Addr string `json:"addr" yaml:"addr"`
	} `json:"server" yaml:"server"`
	Limiter struct {
		Algorithm      string `json:"algorithm" yaml:"algorithm"`
		Duration       string `json:"duration" yaml:"duration"`
		Points         int64  `json:"points" yaml:"points"`
		Prefix         string `json:"prefix" yaml:"prefix"`
		BucketInterval string `json:"bucket_interval" yaml:"bucket_interval"`
		Amount         int64  `json:"amount" yaml:"amount"`
	} `json:"limiter" yaml:"limiter"`
	Storage struct {
		Backend string `json:"backend" yaml:"backend"`
		Memory  struct {
			CleanupInterval string `json:"cleanup_interval" yaml:"cleanup_interval"`
		} `json:"memory" yaml:"memory"`
		Redis struct {
			Host         string   `json:"host" yaml:"host"`
			Port         int      `json:"port" yaml:"port"`
			Password     string   `json:"password" yaml:"password"`
			DB           int      `json:"db" yaml:"db"`
			Cluster      bool     `json:"cluster" yaml:"cluster"`
			ClusterNodes []string `json:"cluster_nodes" yaml:"cluster_nodes"`
			PoolSize     int      `json:"pool_size" yaml:"pool_size"`
			MaxRetries   int      `json:"max_retries" yaml:"max_retries"`
			DialTimeout  string   `json:"dial_timeout" yaml:"dial_timeout"`
		} `json:"redis" yaml:"redis"`
	} `json:"storage" yaml:"storage"`
	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`
}

func (raw rawConfig) mergeInto(cfg *Config) error {
	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}

	l := raw.Limiter
	if l.Algorithm != "" {
		cfg.Limiter.Algorithm = limiter.Algorithm(l.Algorithm)
	}
	if err := setDuration(&cfg.Limiter.Duration, l.Duration, "limiter.duration"); err != nil {
		return err
	}
	if l.Points > 0 {
		cfg.Limiter.Points = l.Points
	}
	if l.Prefix != "" {
		cfg.Limiter.Prefix = l.Prefix
	}
	if err := setDuration(&cfg.Limiter.BucketInterval, l.BucketInterval, "limiter.bucket_interval"); err != nil {
		return err
	}
	if l.Amount > 0 {
		cfg.Limiter.Amount = l.Amount
	}

	s := raw.Storage
	if s.Backend != "" {
		cfg.Storage.Backend = s.Backend
	}
	if err := setDuration(&cfg.Storage.Memory.CleanupInterval, s.Memory.CleanupInterval, "storage.memory.cleanup_interval"); err != nil {
		return err
	}
	r := &cfg.Storage.Redis
	if s.Redis.Host != "" {
		r.Host = s.Redis.Host
	}
	if s.Redis.Port > 0 {
		r.Port = s.Redis.Port
	}
	if s.Redis.Password != "" {
		r.Password = s.Redis.Password
	}
	if s.Redis.DB > 0 {
		r.DB = s.Redis.DB
	}
	if s.Redis.Cluster {
		r.Cluster = true
	}
	if len(s.Redis.ClusterNodes) > 0 {
		r.ClusterNodes = s.Redis.ClusterNodes
	}
	if s.Redis.PoolSize > 0 {
		r.PoolSize = s.Redis.PoolSize
	}
	if s.Redis.MaxRetries > 0 {
		r.MaxRetries = s.Redis.MaxRetries
	}
	if err := setDuration(&r.DialTimeout, s.Redis.DialTimeout, "storage.redis.dial_timeout"); err != nil {
		return err
	}

	if raw.Log.Level != "" {
		cfg.Log.Level = raw.Log.Level
	}
	if raw.Log.Format != "" {
		cfg.Log.Format = raw.Log.Format
	}
	return nil
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

const exampleJSON = `{
  "server": {
    "addr": ":8080"
  },
  "limiter": {
    "algorithm": "sliding-window-counter",
    "duration": "1m",
    "points": 10,
    "prefix": "RL",
    "bucket_interval": "",
    "amount": 1
  },
  "storage": {
    "backend": "memory",
    "memory": {
      "cleanup_interval": "1m"
    },
    "redis": {
      "host": "localhost",
      "port": 6379,
      "db": 0,
      "cluster": false,
      "cluster_nodes": [],
      "pool_size": 20,
      "max_retries": 3,
      "dial_timeout": "5s"
    }
  },
  "log": {
    "level": "info",
    "format": "json"
  }
}
`

const exampleYAML = `server:
  addr: ":8080"
limiter:
  algorithm: sliding-window-counter
  duration: 1m
  points: 10
  prefix: RL
  # bucket_interval: 2s
  amount: 1
storage:
  backend: memory
  memory:
    cleanup_interval: 1m
  redis:
    host: localhost
    port: 6379
    db: 0
    cluster: false
    # cluster_nodes: ["redis-1:6379", "redis-2:6379"]
    pool_size: 20
    max_retries: 3
    dial_timeout: 5s
log:
  level: info
  format: json
`

// WriteExample writes an example config file to the given path, in YAML
// when the path ends in .yaml or .yml and JSON otherwise.
func WriteExample(path string) error {
	example := exampleJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		example = exampleYAML
	}
	return os.WriteFile(path, []byte(example), 0o644)
}
