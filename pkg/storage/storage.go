// Package storage exposes the atomic counter stores the limiters run against.
package storage

import (
	"github.com/redis/go-redis/v9"

	internalstorage "github.com/SmitUplenchwar2687/quota/internal/storage"
)

const (
	BackendMemory = internalstorage.BackendMemory
	BackendRedis  = internalstorage.BackendRedis
)

// Store is the atomic counter store interface.
type Store = internalstorage.Store

// Bucket is one entry of a sliding window counter's bucket log.
type Bucket = internalstorage.Bucket

type (
	MemoryConfig  = internalstorage.MemoryConfig
	MemoryStorage = internalstorage.MemoryStorage
	RedisConfig   = internalstorage.RedisConfig
	RedisStorage  = internalstorage.RedisStorage
)

// ErrCorruptRecord is returned when a persisted bucket log cannot be decoded.
var ErrCorruptRecord = internalstorage.ErrCorruptRecord

// DecodeBuckets parses a bucket log as returned by Store.Record.
func DecodeBuckets(raw []byte) ([]Bucket, error) {
	return internalstorage.DecodeBuckets(raw)
}

// NewMemoryStorage constructs an in-memory store.
func NewMemoryStorage(cfg *MemoryConfig) (*MemoryStorage, error) {
	return internalstorage.NewMemoryStorage(cfg)
}

// NewRedisStorage constructs a Redis store and verifies connectivity.
func NewRedisStorage(cfg *RedisConfig) (*RedisStorage, error) {
	return internalstorage.NewRedisStorage(cfg)
}

// NewRedisStorageFromClient wraps a caller-owned Redis client.
func NewRedisStorageFromClient(client redis.UniversalClient) (*RedisStorage, error) {
	return internalstorage.NewRedisStorageFromClient(client)
}
