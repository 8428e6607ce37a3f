package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"snapgate/pkg/snapshot"
)

// RedisStore implements Store using Redis. Keys never expire; a snapshot
// lives until someone deletes it.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	baseDir string
}

type RedisConfig struct {
	Prefix  string
	BaseDir string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  config.Prefix,
		baseDir: config.BaseDir,
	}
}

// key builds the final Redis key with prefix.
func (c *RedisStore) key(location string) string {
	if c.prefix == "" {
		return location
	}
	return c.prefix + ":" + location
}

func (c *RedisStore) Locate(host, path, fingerprint string) string {
	return Locate(c.baseDir, host, path, fingerprint)
}

// Read retrieves a snapshot from Redis.
func (c *RedisStore) Read(ctx context.Context, location string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	data, err := c.client.Get(ctx, c.key(location)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, &ParseError{Location: location, Err: err}
	}
	return snap, nil
}

// Write stores a snapshot without expiry. SET replaces the value in one
// step, so readers never see a partial record.
func (c *RedisStore) Write(ctx context.Context, location string, snap *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.key(location), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a snapshot.
func (c *RedisStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Del(ctx, c.key(location)).Err()
}

// Ping checks if Redis connection is healthy.
func (c *RedisStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Ping(ctx).Err()
}
