// Package blob stores raw self-description documents keyed by content hash.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sdcatalog/pkg/platform/sentinel"
)

// RedisStore keeps documents as plain string values.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(hash string) string {
	return s.prefix + hash
}

// Store writes content under hash. An existing value is never overwritten:
// sentinel.ErrAlreadyExists is returned instead.
func (s *RedisStore) Store(ctx context.Context, hash string, content []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(hash), content, 0).Result()
	if err != nil {
		return fmt.Errorf("store blob: %w", err)
	}
	if !ok {
		return fmt.Errorf("store blob %s: %w", hash, sentinel.ErrAlreadyExists)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, hash string) ([]byte, error) {
	content, err := s.client.Get(ctx, s.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read blob %s: %w", hash, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return content, nil
}

func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	n, err := s.client.Del(ctx, s.key(hash)).Result()
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete blob %s: %w", hash, sentinel.ErrNotFound)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
