package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/config"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

type storageOptions struct {
	backend               string
	memoryCleanupInterval time.Duration
	redisHost             string
	redisPort             int
	redisPassword         string
	redisDB               int
	redisCluster          bool
	redisClusterNodes     []string
	redisPoolSize         int
	redisMaxRetries       int
	redisDialTimeout      time.Duration
}

func (o *storageOptions) addFlags(cmd *cobra.Command) {
	def := config.Default().Storage
	cmd.Flags().StringVar(&o.backend, "storage", def.Backend, "storage backend (memory, redis)")
	cmd.Flags().DurationVar(&o.memoryCleanupInterval, "storage-memory-cleanup-interval", def.Memory.CleanupInterval, "cleanup interval for memory storage backend")
	cmd.Flags().StringVar(&o.redisHost, "redis-host", def.Redis.Host, "redis host (or host:port)")
	cmd.Flags().IntVar(&o.redisPort, "redis-port", def.Redis.Port, "redis port")
	cmd.Flags().StringVar(&o.redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	cmd.Flags().StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	cmd.Flags().IntVar(&o.redisPoolSize, "redis-pool-size", def.Redis.PoolSize, "redis connection pool size")
	cmd.Flags().IntVar(&o.redisMaxRetries, "redis-max-retries", def.Redis.MaxRetries, "redis max retries")
	cmd.Flags().DurationVar(&o.redisDialTimeout, "redis-dial-timeout", def.Redis.DialTimeout, "redis dial timeout")
}

// applyConfigIfUnset copies config values into every option whose flag was
// not set explicitly.
func (o *storageOptions) applyConfigIfUnset(cmd *cobra.Command, cfg *config.StorageConfig) {
	if cfg == nil {
		return
	}

	if !cmd.Flags().Changed("storage") {
		o.backend = cfg.Backend
	}
	if !cmd.Flags().Changed("storage-memory-cleanup-interval") {
		o.memoryCleanupInterval = cfg.Memory.CleanupInterval
	}
	if !cmd.Flags().Changed("redis-host") {
		o.redisHost = cfg.Redis.Host
	}
	if !cmd.Flags().Changed("redis-port") {
		o.redisPort = cfg.Redis.Port
	}
	if !cmd.Flags().Changed("redis-password") {
		o.redisPassword = cfg.Redis.Password
	}
	if !cmd.Flags().Changed("redis-db") {
		o.redisDB = cfg.Redis.DB
	}
	if !cmd.Flags().Changed("redis-cluster") {
		o.redisCluster = cfg.Redis.Cluster
	}
	if !cmd.Flags().Changed("redis-cluster-nodes") {
		o.redisClusterNodes = cfg.Redis.ClusterNodes
	}
	if !cmd.Flags().Changed("redis-pool-size") {
		o.redisPoolSize = cfg.Redis.PoolSize
	}
	if !cmd.Flags().Changed("redis-max-retries") {
		o.redisMaxRetries = cfg.Redis.MaxRetries
	}
	if !cmd.Flags().Changed("redis-dial-timeout") {
		o.redisDialTimeout = cfg.Redis.DialTimeout
	}
}

func (o *storageOptions) normalize() error {
	if o.backend != storage.BackendRedis || o.redisCluster {
		return nil
	}

	host, port, err := normalizeRedisHostPort(o.redisHost, o.redisPort)
	if err != nil {
		return err
	}
	o.redisHost = host
	o.redisPort = port
	return nil
}

func (o *storageOptions) toConfig() config.StorageConfig {
	return config.StorageConfig{
		Backend: o.backend,
		Memory: config.MemoryConfig{
			CleanupInterval: o.memoryCleanupInterval,
		},
		Redis: storage.RedisConfig{
			Host:         o.redisHost,
			Port:         o.redisPort,
			Password:     o.redisPassword,
			DB:           o.redisDB,
			Cluster:      o.redisCluster,
			ClusterNodes: append([]string(nil), o.redisClusterNodes...),
			PoolSize:     o.redisPoolSize,
			MaxRetries:   o.redisMaxRetries,
			DialTimeout:  o.redisDialTimeout,
		},
	}
}

// openStore connects the configured backend. Memory stores read time from clk.
func openStore(cfg config.StorageConfig, clk clock.Clock, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case storage.BackendMemory:
		logger.Info("using memory storage", zap.Duration("cleanup_interval", cfg.Memory.CleanupInterval))
		s, err := storage.NewMemoryStorage(&storage.MemoryConfig{
			Clock:           clk,
			CleanupInterval: cfg.Memory.CleanupInterval,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case storage.BackendRedis:
		redisCfg := cfg.Redis
		if redisCfg.Cluster {
			logger.Info("using redis cluster storage", zap.Strings("nodes", redisCfg.ClusterNodes))
		} else {
			logger.Info("using redis storage", zap.String("addr", net.JoinHostPort(redisCfg.Host, strconv.Itoa(redisCfg.Port))))
		}
		s, err := storage.NewRedisStorage(&redisCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}
