package aicache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"

	"github.com/thebtf/scribe/pkg/models"
)

const redisKeyPrefix = "scribe:aicache:"

// RedisStore is a shared cache store for deployments where several journal
// generators should reuse each other's backend responses. TTL handling is
// delegated to Redis key expiry.
type RedisStore struct {
	pool *redis.Pool
}

// NewRedisStore creates a store talking to the Redis instance at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
		},
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*models.BatchResponse, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	defer conn.Close()

	payload, err := redis.Bytes(conn.Do("GET", redisKeyPrefix+fingerprint))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var resp models.BatchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("redis decode: %w", err)
	}
	return &resp, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, fingerprint string, resp models.BatchResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	defer conn.Close()

	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if _, err := conn.Do("SETEX", redisKeyPrefix+fingerprint, seconds, payload); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", redisKeyPrefix+fingerprint); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}
