// Package redis opens the Redis connection backing the document store.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sdcatalog/internal/platform/config"
)

// Client wraps the go-redis client with the health check used by /readyz.
type Client struct {
	*redis.Client
	keyPrefix string
}

// New dials Redis from cfg and verifies the connection with a PING.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// KeyPrefix is the namespace document keys are stored under.
func (c *Client) KeyPrefix() string {
	return c.keyPrefix
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
