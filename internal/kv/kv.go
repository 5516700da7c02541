// Package kv is the key-value store capability exposed to sandboxed
// plugins. It is backed by Redis (redis/go-redis/v9, the teacher's queue
// driver repurposed here from task queueing to a plugin-facing capability
// store) and namespaces every key by plugin name so plugins cannot see
// each other's data.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a namespaced view over a shared Redis client.
type Store struct {
	rdb *redis.Client
}

// Open parses url and verifies connectivity.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// New wraps an already-opened client.
func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func namespacedKey(plugin, key string) string {
	return fmt.Sprintf("octabot:kv:%s:%s", plugin, key)
}

// Get returns the value stored for key under plugin's namespace. A missing
// key returns ("", false, nil).
func (s *Store) Get(ctx context.Context, plugin, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, namespacedKey(plugin, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores value for key under plugin's namespace. ttl of zero means no
// expiry.
func (s *Store) Set(ctx context.Context, plugin, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, namespacedKey(plugin, key), value, ttl).Err()
}

// Delete removes key from plugin's namespace.
func (s *Store) Delete(ctx context.Context, plugin, key string) error {
	return s.rdb.Del(ctx, namespacedKey(plugin, key)).Err()
}

// Exists reports whether key is present in plugin's namespace.
func (s *Store) Exists(ctx context.Context, plugin, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, namespacedKey(plugin, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
