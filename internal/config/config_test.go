package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, CounterStore, cfg.Counter.Backend)
	assert.Equal(t, ModeWhatsmeow, cfg.WhatsApp.Mode)
	assert.Equal(t, 3, cfg.Registry.FailureThreshold)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  auth_token: secret
  allowed_origins:
    - "https://panel.example.com"
log:
  level: debug
storage:
  driver: memory
counter:
  backend: redis
  redis:
    addr: "redis:6379"
    db: 2
whatsapp:
  mode: simulate
  send_timeout: 5s
simulate:
  failure_rate: 0.25
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep their defaults")
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, []string{"https://panel.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, CounterRedis, cfg.Counter.Backend)
	assert.Equal(t, "redis:6379", cfg.Counter.Redis.Addr)
	assert.Equal(t, 2, cfg.Counter.Redis.DB)
	assert.Equal(t, "wa:session:", cfg.Counter.Redis.KeyPrefix)
	assert.Equal(t, ModeSimulate, cfg.WhatsApp.Mode)
	assert.Equal(t, 5*time.Second, cfg.WhatsApp.SendTimeout)
	assert.Equal(t, 30*time.Second, cfg.WhatsApp.ConnectTimeout)
	assert.InDelta(t, 0.25, cfg.Simulate.FailureRate, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Broadcast.SnapshotInterval)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, ":::not valid yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: postgres\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"unknown counter", func(c *Config) { c.Counter.Backend = "etcd" }, "counter.backend"},
		{"redis without addr", func(c *Config) {
			c.Counter.Backend = CounterRedis
			c.Counter.Redis.Addr = ""
		}, "counter.redis.addr"},
		{"unknown mode", func(c *Config) { c.WhatsApp.Mode = "browser" }, "whatsapp.mode"},
		{"whatsmeow without device store", func(c *Config) { c.WhatsApp.DeviceStore = "" }, "device_store"},
		{"zero send timeout", func(c *Config) { c.WhatsApp.SendTimeout = 0 }, "send_timeout"},
		{"zero connect timeout", func(c *Config) { c.WhatsApp.ConnectTimeout = 0 }, "connect_timeout"},
		{"failure rate above one", func(c *Config) { c.Simulate.FailureRate = 1.5 }, "failure_rate"},
		{"no uploads dir", func(c *Config) { c.Uploads.Dir = "" }, "uploads.dir"},
		{"zero upload limit", func(c *Config) { c.Uploads.MaxBytes = 0 }, "max_bytes"},
		{"zero throttle", func(c *Config) { c.Broadcast.Throttle = 0 }, "broadcast"},
		{"zero failure threshold", func(c *Config) { c.Registry.FailureThreshold = 0 }, "failure_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddrAndCredsDir(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9000
	cfg.Uploads.Dir = "/srv/uploads"

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "/srv/uploads/creds", cfg.CredsDir())
}
