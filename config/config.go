// Package config loads the dispatchd server configuration.
//
// Values are resolved in three layers, each overriding the previous one:
// built-in defaults, an optional YAML file and DIOS_* environment
// variables. A .env file in the working directory is loaded into the
// environment first; variables already set are left alone.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	backend "github.com/DiOS-Analysis/Backend"
)

// Store kinds accepted by Validate.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreBun      = "bun"
	StoreRedis    = "redis"
	StoreNATSKV   = "natskv"
)

// StoreKinds returns every supported store kind.
func StoreKinds() []string {
	return []string{StoreMemory, StoreMongo, StorePostgres, StoreBun, StoreRedis, StoreNATSKV}
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config is the full server configuration.
type Config struct {
	HTTP  HTTPConfig  `yaml:"http"`
	Store StoreConfig `yaml:"store"`
	Claim ClaimConfig `yaml:"claim"`
	Log   LogConfig   `yaml:"log"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`

	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	NATSURL       string `yaml:"nats_url"`
	NATSBucket    string `yaml:"nats_bucket_prefix"`
}

// ClaimConfig bounds a single claim.
type ClaimConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Kind:          StoreMemory,
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "dios",
			PostgresDSN:   "postgres://localhost:5432/dios?sslmode=disable",
			RedisAddr:     "localhost:6379",
			NATSURL:       "nats://localhost:4222",
		},
		Claim: ClaimConfig{
			MaxAttempts: backend.DefaultMaxClaimAttempts,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("DIOS_HTTP_ADDR", &c.HTTP.Addr)
	str("DIOS_STORE", &c.Store.Kind)
	str("DIOS_MONGO_URI", &c.Store.MongoURI)
	str("DIOS_MONGO_DATABASE", &c.Store.MongoDatabase)
	str("DIOS_POSTGRES_DSN", &c.Store.PostgresDSN)
	str("DIOS_REDIS_ADDR", &c.Store.RedisAddr)
	str("DIOS_NATS_URL", &c.Store.NATSURL)
	str("DIOS_NATS_BUCKET_PREFIX", &c.Store.NATSBucket)
	str("DIOS_LOG_LEVEL", &c.Log.Level)
	str("DIOS_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("DIOS_MAX_CLAIM_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DIOS_MAX_CLAIM_ATTEMPTS: %w", ErrInvalid, err)
		}
		c.Claim.MaxAttempts = n
	}
	for key, dst := range map[string]*time.Duration{
		"DIOS_CLAIM_TIMEOUT":    &c.Claim.Timeout,
		"DIOS_SHUTDOWN_TIMEOUT": &c.HTTP.ShutdownTimeout,
	} {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("%w: http.addr is empty", ErrInvalid)
	}
	if !slices.Contains(StoreKinds(), c.Store.Kind) {
		return fmt.Errorf("%w: unknown store kind %q (want one of %s)",
			ErrInvalid, c.Store.Kind, strings.Join(StoreKinds(), ", "))
	}
	if c.Claim.MaxAttempts < 0 {
		return fmt.Errorf("%w: claim.max_attempts must not be negative", ErrInvalid)
	}
	if c.Claim.Timeout < 0 {
		return fmt.Errorf("%w: claim.timeout must not be negative", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Backend returns the dispatcher configuration.
func (c Config) Backend() backend.Config {
	return backend.Config{
		MaxClaimAttempts: c.Claim.MaxAttempts,
		ClaimTimeout:     c.Claim.Timeout,
	}
}
