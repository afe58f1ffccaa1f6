package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DiOS-Analysis/Backend/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatchd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadLayers(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9000"
store:
  kind: postgres
  postgres_dsn: postgres://db/dios
claim:
  max_attempts: 32
  timeout: 3s
log:
  format: text
`)
	t.Setenv("DIOS_STORE", "redis")
	t.Setenv("DIOS_CLAIM_TIMEOUT", "750ms")
	t.Setenv("DIOS_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Store.Kind != config.StoreRedis {
		t.Errorf("store = %q, env must override file", cfg.Store.Kind)
	}
	if cfg.Store.PostgresDSN != "postgres://db/dios" {
		t.Errorf("dsn = %q", cfg.Store.PostgresDSN)
	}
	if cfg.Store.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Store.RedisAddr)
	}
	b := cfg.Backend()
	if b.MaxClaimAttempts != 32 || b.ClaimTimeout != 750*time.Millisecond {
		t.Errorf("backend config = %+v", b)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %s", cfg.HTTP.ShutdownTimeout)
	}
	lvl, err := cfg.Log.SlogLevel()
	if err != nil || lvl.String() != "DEBUG" {
		t.Errorf("level = %v, %v", lvl, err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("DIOS_MAX_CLAIM_ATTEMPTS", "0")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Claim.MaxAttempts != 0 {
		t.Errorf("max attempts = %d, want 0", cfg.Claim.MaxAttempts)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{"DIOS_STORE": "sqlite"}},
		{name: "bad attempts", env: map[string]string{"DIOS_MAX_CLAIM_ATTEMPTS": "many"}},
		{name: "negative attempts", env: map[string]string{"DIOS_MAX_CLAIM_ATTEMPTS": "-1"}},
		{name: "bad timeout", env: map[string]string{"DIOS_CLAIM_TIMEOUT": "soon"}},
		{name: "bad log format", env: map[string]string{"DIOS_LOG_FORMAT": "xml"}},
		{name: "bad log level", env: map[string]string{"DIOS_LOG_LEVEL": "loud"}},
		{name: "empty addr", file: "http:\n  addr: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := config.Load(path)
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want not-exist", err)
	}
}
