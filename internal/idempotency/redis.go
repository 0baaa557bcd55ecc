package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brianlane/bizblasts-sub006/internal/logger"
)

const pending = "pending"

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Connect builds a client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	const op = "idempotency.Connect"

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func (s *RedisStore) Claim(ctx context.Context, key string) (uuid.UUID, bool, error) {
	const op = "idempotency.RedisStore.Claim"

	logger.ExternalServiceCall("redis", "SETNX", "key", key)
	ok, err := s.client.SetNX(ctx, key, pending, s.ttl).Result()
	logger.ExternalServiceResult("redis", "SETNX", err, "key", key, "claimed", ok)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return uuid.Nil, true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the caller may retry
		return uuid.Nil, false, ErrInFlight
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if val == pending {
		return uuid.Nil, false, ErrInFlight
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s: corrupt value for %s: %w", op, key, err)
	}
	return id, false, nil
}

func (s *RedisStore) Bind(ctx context.Context, key string, id uuid.UUID) error {
	const op = "idempotency.RedisStore.Bind"

	if err := s.client.Set(ctx, key, id.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	const op = "idempotency.RedisStore.Release"

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
