// Package redisstore adapts a Redis client to the durable Store contract.
package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/souqline/entitlements/internal/config"
)

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Store{client: client}, nil
}

// NewClient builds the redis client from application config.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	// State records carry their own expiry semantics; no key TTL here.
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
