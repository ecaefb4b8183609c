package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// EnvPrefix prefixes every environment variable LoadEnv reads.
const EnvPrefix = "QUOTA_"

// LoadEnv loads the given .env files (".env" when none are given) into the
// process environment and applies QUOTA_* variables over cfg. Variables
// already set in the environment win over .env files. A missing default
// .env file is not an error.
func LoadEnv(cfg *Config, files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}

	return applyEnv(cfg)
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "SERVER_ADDR")

	if v := getEnv("ALGORITHM"); v != "" {
		cfg.Limiter.Algorithm = limiter.Algorithm(v)
	}
	if err := envDuration(&cfg.Limiter.Duration, "DURATION"); err != nil {
		return err
	}
	if err := envInt64(&cfg.Limiter.Points, "POINTS"); err != nil {
		return err
	}
	setString(&cfg.Limiter.Prefix, "PREFIX")
	if err := envDuration(&cfg.Limiter.BucketInterval, "BUCKET_INTERVAL"); err != nil {
		return err
	}
	if err := envInt64(&cfg.Limiter.Amount, "AMOUNT"); err != nil {
		return err
	}

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	if err := envDuration(&cfg.Storage.Memory.CleanupInterval, "MEMORY_CLEANUP_INTERVAL"); err != nil {
		return err
	}

	r := &cfg.Storage.Redis
	setString(&r.Host, "REDIS_HOST")
	setString(&r.Password, "REDIS_PASSWORD")
	if err := envInt(&r.Port, "REDIS_PORT"); err != nil {
		return err
	}
	if err := envInt(&r.DB, "REDIS_DB"); err != nil {
		return err
	}
	if v := getEnv("REDIS_CLUSTER_NODES"); v != "" {
		r.ClusterNodes = splitList(v)
		r.Cluster = true
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	return nil
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func setString(dst *string, name string) {
	if v := getEnv(name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) error {
	v := getEnv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envInt64(dst *int64, name string) error {
	v := getEnv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envDuration(dst *time.Duration, name string) error {
	v := getEnv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
