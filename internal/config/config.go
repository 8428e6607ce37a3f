package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"snapgate/pkg/store"
)

const (
	// DefaultFile is read when Load gets an empty path. It may be absent.
	DefaultFile = "snapgate.yaml"

	envPrefix = "SNAPGATE_"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Redis    RedisConfig    `koanf:"redis"`
	Log      LogConfig      `koanf:"log"`
	Tracing  TracingConfig  `koanf:"tracing"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
}

type SnapshotConfig struct {
	Dir     string `koanf:"dir"`
	Update  bool   `koanf:"update"`
	Test    string `koanf:"test"`    // URL regexp, empty matches all
	Backend string `koanf:"backend"` // file, memory, redis
}

type UpstreamConfig struct {
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
}

type RedisConfig struct {
	Addr   string `koanf:"addr"`
	Prefix string `koanf:"prefix"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":            8080,
	"server.request_timeout": "30s",
	"server.max_body_bytes":  10 << 20,
	"snapshot.backend":       store.BackendFile,
	"upstream.timeout":       "30s",
	"upstream.max_retries":   0,
	"upstream.base_backoff":  "100ms",
	"redis.addr":             "127.0.0.1:6379",
	"redis.prefix":           "snapgate",
	"log.level":              "info",
	"tracing.service_name":   "snapgate",
}

// Load reads defaults, then the YAML file at path, then SNAPGATE_*
// environment variables (a .env file is loaded first if present). Nested
// keys use a double underscore: SNAPGATE_SNAPSHOT__DIR sets snapshot.dir.
// An empty path means DefaultFile, which may be missing; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("config: default %s: %w", key, err)
		}
	}

	optional := path == ""
	if optional {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Validate reports configuration that would fail at startup.
func (c *Config) Validate() error {
	if c.Snapshot.Dir == "" {
		return errors.New("config: snapshot.dir is required")
	}
	switch c.Snapshot.Backend {
	case store.BackendFile, store.BackendMemory, store.BackendRedis:
	default:
		return fmt.Errorf("config: unknown snapshot.backend %q", c.Snapshot.Backend)
	}
	if _, err := c.TestPattern(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("config: server.max_body_bytes must be positive")
	}
	return nil
}

// TestPattern compiles snapshot.test. An empty pattern returns nil.
func (c *Config) TestPattern() (*regexp.Regexp, error) {
	if c.Snapshot.Test == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.Snapshot.Test)
	if err != nil {
		return nil, fmt.Errorf("config: snapshot.test: %w", err)
	}
	return re, nil
}
