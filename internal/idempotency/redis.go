package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RedisStore struct {
	client *redis.Client
	opts   options
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: defaults(opts)}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, scope, key string) (*Record, error) {
	data, err := s.client.Get(ctx, storageKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Claim(ctx context.Context, scope, key string) (bool, error) {
	data, err := json.Marshal(Record{State: StatePending})
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, storageKey(scope, key), data, s.opts.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency claim: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Complete(ctx context.Context, scope, key string, rec Record) error {
	rec.State = StateDone
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, storageKey(scope, key), data, s.opts.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Abandon(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, storageKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency abandon: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
