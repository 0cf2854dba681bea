package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricewatch/internal/clock"
)

var ErrCacheUnavailable = errors.New("cache_unavailable")

// ResultStore holds encoded detection results by filter fingerprint.
type ResultStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryResultStore keeps results in process memory. It is lost on restart.
type MemoryResultStore struct {
	entries *TTLCache[string, []byte]
}

func NewMemoryResultStore(clk clock.Clock) *MemoryResultStore {
	return &MemoryResultStore{entries: NewTTLCache[string, []byte](clk)}
}

func (s *MemoryResultStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

func (s *MemoryResultStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.entries.Set(key, append([]byte(nil), payload...), ttl)
	return nil
}

func (s *MemoryResultStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// RedisResultStore shares results between replicas. Expiry is delegated to redis.
type RedisResultStore struct {
	client *redis.Client
	prefix string
}

func NewRedisResultStore(client *redis.Client, prefix string) *RedisResultStore {
	return &RedisResultStore{
		client: client,
		prefix: strings.TrimSuffix(strings.TrimSpace(prefix), ":"),
	}
}

func (s *RedisResultStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisResultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, ErrCacheUnavailable
	}
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Join(ErrCacheUnavailable, err)
	}
	return payload, true, nil
}

func (s *RedisResultStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return ErrCacheUnavailable
	}
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (s *RedisResultStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return ErrCacheUnavailable
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}
