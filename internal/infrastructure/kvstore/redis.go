package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each blob under the Redis key "<namespace>:<key>".
// Commit flushes staged values in a single MULTI/EXEC transaction.
type RedisStore struct {
	client *redis.Client

	mu     sync.Mutex
	staged map[stagedKey][]byte
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisStore(client), nil
}

func newRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		staged: make(map[stagedKey][]byte),
	}
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get returns the staged value if any, otherwise the stored one.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := s.staged[stagedKey{namespace, key}]; ok {
		out := append([]byte(nil), v...)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	val, err := s.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey(namespace, key), err)
	}
	return val, nil
}

// Set stages value for the next Commit.
func (s *RedisStore) Set(_ context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.staged[stagedKey{namespace, key}] = append([]byte(nil), value...)
	return nil
}

// Commit writes all staged values atomically. Staged values are dropped
// on failure too; callers Set again to retry.
func (s *RedisStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.staged) == 0 {
		return nil
	}
	defer clear(s.staged)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range s.staged {
			pipe.Set(ctx, redisKey(k.namespace, k.key), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing blobs: %w", err)
	}
	return nil
}

// Close discards uncommitted values and closes the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.staged)
	return s.client.Close()
}

// HealthCheck pings the Redis server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}
