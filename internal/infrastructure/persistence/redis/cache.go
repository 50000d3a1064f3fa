// Package redis holds the Redis-backed pieces of the progress engine: a
// JSON value cache, the progress snapshot cache built on it, and the
// per-enrollment lock shared by API replicas and the worker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss means the key is absent or expired.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrCacheConnection wraps dial, ping and URL errors.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheEncoding wraps JSON failures in either direction.
	ErrCacheEncoding = errors.New("cache: encoding failed")

	// ErrCacheBadInput rejects empty keys, nil values and negative TTLs.
	ErrCacheBadInput = errors.New("cache: invalid input")
)

// Key layout. Everything the engine writes lives under "lms:".
const (
	PrefixSnapshot = "lms:snapshot:"
	PrefixLock     = "lms:lock:"

	TTLSnapshotCache   = 2 * time.Minute
	TTLDistributedLock = 10 * time.Second
)

// SnapshotKey is lms:snapshot:<student>:<course>.
func SnapshotKey(studentID, courseID string) string {
	return PrefixSnapshot + studentID + ":" + courseID
}

// LockKey is lms:lock:<resource>.
func LockKey(resource string) string {
	return PrefixLock + resource
}

// Config describes how to reach Redis. URL wins over Host and Port.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() (*redis.Options, error) {
	var opts *redis.Options
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
		}
		opts = parsed
	} else {
		host, port := c.Host, c.Port
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = 6379
		}
		opts = &redis.Options{
			Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
			Password: c.Password,
			DB:       c.DB,
		}
	}

	// Zero values keep the go-redis defaults.
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		opts.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// Cache stores JSON-encoded values with a TTL.
type Cache struct {
	client *redis.Client
}

// NewCache dials Redis and pings it once within DialTimeout (5s if unset).
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an already configured client. Used by tests.
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Client exposes the raw client to the locker, which needs SETNX and Lua.
func (c *Cache) Client() *redis.Client { return c.client }

func (c *Cache) Close() error { return c.client.Close() }

// Ping is used by the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set encodes value as JSON and stores it for ttl. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrCacheBadInput)
	case value == nil:
		return fmt.Errorf("%w: nil value for %q", ErrCacheBadInput, key)
	case ttl < 0:
		return fmt.Errorf("%w: negative ttl for %q", ErrCacheBadInput, key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheEncoding, err)
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Get decodes the value stored under key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrCacheBadInput)
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheEncoding, err)
	}
	return nil
}

// Delete drops keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeleteMatching removes every key matching a glob pattern. Keys are
// collected with SCAN first and deleted afterwards in pages: deleting while
// the cursor is open can make the scan skip keys.
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("%w: empty pattern", ErrCacheBadInput)
	}

	const page = 100
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, page).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += page {
		end := start + page
		if end > len(keys) {
			end = len(keys)
		}
		n, err := c.client.Del(ctx, keys[start:end]...).Result()
		deleted += int(n)
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
