package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	BaseDir string
	Prefix  string
}

// NewStore builds the configured backend. An empty backend means file.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.BaseDir, nil), nil
	case BackendMemory:
		return NewMemoryStore(cfg.BaseDir), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("store: redis backend needs a redis client")
		}
		return NewRedisStore(redisClient, RedisConfig{
			Prefix:  cfg.Prefix,
			BaseDir: cfg.BaseDir,
		}), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
