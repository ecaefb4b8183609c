package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int           `json:"db" yaml:"db"`
	Cluster      bool          `json:"cluster" yaml:"cluster"`
	ClusterNodes []string      `json:"cluster_nodes,omitempty" yaml:"cluster_nodes,omitempty"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// incrementBelowScript reads the counter, compares it against the limit and
// increments it in one server-side step.
var incrementBelowScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call('GET', key) or '0')
if current == nil then
  return redis.error_reply('ERR counter at ' .. key .. ' is not an integer')
end

if current >= limit then
  return {0, current}
end

redis.call('INCRBY', key, amount)
redis.call('PEXPIRE', key, ttl)
return {1, current}
`)

// appendBelowScript purges the log, counts it and appends the new members
// in one server-side step.
var appendBelowScript = redis.NewScript(`
local key = KEYS[1]
local since = ARGV[1]
local limit = tonumber(ARGV[2])
local score = ARGV[3]
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', since)
local count = redis.call('ZCARD', key)

if count >= limit then
  return {0, count}
end

for i = 5, #ARGV do
  redis.call('ZADD', key, score, ARGV[i])
end
redis.call('PEXPIRE', key, ttl)
return {1, count}
`)

// addBucketBelowScript decodes the bucket log, sums the buckets overlapping
// the window, merges or opens the current bucket, prunes and writes the log
// back in one server-side step. Validation matches DecodeBuckets.
var addBucketBelowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local amount = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local interval = tonumber(ARGV[5])
local windowStart = now - window

local buckets = {}
local raw = redis.call('GET', key)
if raw then
  local ok, decoded = pcall(cjson.decode, raw)
  if not ok or type(decoded) ~= 'table' then
    return redis.error_reply('ERR corrupt bucket log at ' .. key)
  end
  local n = 0
  for _ in pairs(decoded) do n = n + 1 end
  if n ~= #decoded then
    return redis.error_reply('ERR corrupt bucket log at ' .. key .. ': not an array')
  end
  local prev = nil
  for i, b in ipairs(decoded) do
    if type(b) ~= 'table' then
      return redis.error_reply('ERR corrupt bucket log at ' .. key .. ': bucket ' .. i)
    end
    local ts = b.timestamp or 0
    local count = b.count or 0
    if type(ts) ~= 'number' or type(count) ~= 'number' or count < 0 or (prev and ts < prev) then
      return redis.error_reply('ERR corrupt bucket log at ' .. key .. ': bucket ' .. i)
    end
    prev = ts
    buckets[i] = {timestamp = ts, count = count}
  end
end

local count = 0
for _, b in ipairs(buckets) do
  if b.timestamp + interval > windowStart then
    count = count + b.count
  end
end
if count >= limit then
  return {0, count}
end

local last = buckets[#buckets]
if last and last.timestamp > now - interval then
  last.count = last.count + amount
else
  buckets[#buckets + 1] = {timestamp = now, count = amount}
end

local kept = {}
for _, b in ipairs(buckets) do
  if b.timestamp + interval > windowStart then
    kept[#kept + 1] = b
  end
end
redis.call('SET', key, cjson.encode(kept), 'PX', window)
return {1, count}
`)

// RedisStorage is a Redis-backed implementation of Store.
type RedisStorage struct {
	client     redis.UniversalClient
	ownsClient bool

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStorage constructs a Redis backend and verifies connectivity.
func NewRedisStorage(cfg *RedisConfig) (*RedisStorage, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	client := newRedisClient(conf)
	s := &RedisStorage{
		client:     client,
		ownsClient: true,
	}

	if err := s.pingWithRetry(context.Background(), conf.MaxRetries); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

// NewRedisStorageFromClient wraps a client whose lifecycle is owned by the
// caller. Close does not close the client.
func NewRedisStorageFromClient(client redis.UniversalClient) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStorage{client: client}, nil
}

func (s *RedisStorage) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %q: %w", key, err)
	}
	return n, nil
}

func (s *RedisStorage) IncrementBelow(ctx context.Context, key string, amount, limit int64, ttl time.Duration) (int64, bool, error) {
	ttlMS, err := ttlMillis(ttl)
	if err != nil {
		return 0, false, err
	}

	res, err := incrementBelowScript.Run(ctx, s.client, []string{key}, amount, limit, ttlMS).Result()
	if err != nil {
		return 0, false, fmt.Errorf("running increment script: %w", err)
	}
	return parseScriptReply(res)
}

func (s *RedisStorage) CountSince(ctx context.Context, key string, since time.Time) (int64, error) {
	lower := "(" + strconv.FormatInt(clock.Millis(since), 10)
	n, err := s.client.ZCount(ctx, key, lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting log %q: %w", key, err)
	}
	return n, nil
}

func (s *RedisStorage) AppendBelow(ctx context.Context, key string, since, at time.Time, members []string, limit int64, ttl time.Duration) (int64, bool, error) {
	ttlMS, err := ttlMillis(ttl)
	if err != nil {
		return 0, false, err
	}

	args := make([]interface{}, 0, 4+len(members))
	args = append(args, clock.Millis(since), limit, clock.Millis(at), ttlMS)
	for _, m := range members {
		args = append(args, m)
	}

	res, err := appendBelowScript.Run(ctx, s.client, []string{key}, args...).Result()
	if err != nil {
		return 0, false, fmt.Errorf("running log script: %w", err)
	}
	return parseScriptReply(res)
}

func (s *RedisStorage) Record(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %q: %w", key, err)
	}
	return b, nil
}

func (s *RedisStorage) AddBucketBelow(ctx context.Context, key string, at time.Time, amount, limit int64, window, interval time.Duration) (int64, bool, error) {
	windowMS, err := ttlMillis(window)
	if err != nil {
		return 0, false, err
	}
	intervalMS := interval.Milliseconds()
	if intervalMS <= 0 {
		return 0, false, fmt.Errorf("interval must be at least 1ms, got %s", interval)
	}

	res, err := addBucketBelowScript.Run(ctx, s.client, []string{key},
		clock.Millis(at), amount, limit, windowMS, intervalMS).Result()
	if err != nil {
		if strings.Contains(err.Error(), "corrupt bucket log") {
			return 0, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		return 0, false, fmt.Errorf("running bucket script: %w", err)
	}
	return parseScriptReply(res)
}

// Close releases Redis resources when the store owns the client. It is idempotent.
func (s *RedisStorage) Close() error {
	s.closeOnce.Do(func() {
		if s.ownsClient {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}

func (s *RedisStorage) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := s.client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	return lastErr
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, fmt.Errorf("cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, fmt.Errorf("host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, fmt.Errorf("port must be positive when cluster=false, got %d", conf.Port)
		}
	}

	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}

func ttlMillis(ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		return 0, fmt.Errorf("ttl must be at least 1ms, got %s", ttl)
	}
	return ms, nil
}

// parseScriptReply decodes the {applied, observed} pair every script returns.
func parseScriptReply(res interface{}) (int64, bool, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected redis script result: %T", res)
	}

	applied, err := asInt64(values[0])
	if err != nil {
		return 0, false, fmt.Errorf("parsing applied flag: %w", err)
	}
	observed, err := asInt64(values[1])
	if err != nil {
		return 0, false, fmt.Errorf("parsing observed count: %w", err)
	}
	return observed, applied == 1, nil
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int64 from %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
