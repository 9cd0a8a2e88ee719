package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Counter   CounterConfig   `yaml:"counter"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Simulate  SimulateConfig  `yaml:"simulate"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Registry  RegistryConfig  `yaml:"registry"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// StorageConfig selects where session records and upload records live.
// Driver is "sqlite" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// CounterConfig selects the sent-message counter. Backend "store" keeps the
// count in the session repository, "redis" keeps it in Redis.
type CounterConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// WhatsAppConfig configures the messaging client. Mode is "whatsmeow" for
// the real library or "simulate" for the stand-in client.
type WhatsAppConfig struct {
	Mode           string        `yaml:"mode"`
	DeviceStore    string        `yaml:"device_store"`
	CredsPath      string        `yaml:"creds_path"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
}

type SimulateConfig struct {
	Latency     time.Duration `yaml:"latency"`
	FailureRate float64       `yaml:"failure_rate"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type RegistryConfig struct {
	// FailureThreshold is the number of consecutive send failures after
	// which a session reports itself as failing.
	FailureThreshold int `yaml:"failure_threshold"`
}

const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	CounterStore = "store"
	CounterRedis = "redis"

	ModeWhatsmeow = "whatsmeow"
	ModeSimulate  = "simulate"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "data/sessions.db",
		},
		Counter: CounterConfig{
			Backend: CounterStore,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "wa:session:",
			},
		},
		WhatsApp: WhatsAppConfig{
			Mode:           ModeWhatsmeow,
			DeviceStore:    "file:data/devices.db?_foreign_keys=on",
			CredsPath:      "attached_assets/creds.json",
			ConnectTimeout: 30 * time.Second,
			SendTimeout:    30 * time.Second,
		},
		Simulate: SimulateConfig{
			Latency: 200 * time.Millisecond,
		},
		Uploads: UploadsConfig{
			Dir:      "uploads",
			MaxBytes: 5 << 20,
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
		},
		Registry: RegistryConfig{
			FailureThreshold: 3,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.Errorf("storage.path is required for the sqlite driver")
		}
	case StorageMemory:
	default:
		return errors.Errorf("storage.driver %q: want %q or %q", c.Storage.Driver, StorageSQLite, StorageMemory)
	}
	switch c.Counter.Backend {
	case CounterStore:
	case CounterRedis:
		if c.Counter.Redis.Addr == "" {
			return errors.Errorf("counter.redis.addr is required for the redis backend")
		}
	default:
		return errors.Errorf("counter.backend %q: want %q or %q", c.Counter.Backend, CounterStore, CounterRedis)
	}
	switch c.WhatsApp.Mode {
	case ModeWhatsmeow:
		if c.WhatsApp.DeviceStore == "" {
			return errors.Errorf("whatsapp.device_store is required in whatsmeow mode")
		}
	case ModeSimulate:
	default:
		return errors.Errorf("whatsapp.mode %q: want %q or %q", c.WhatsApp.Mode, ModeWhatsmeow, ModeSimulate)
	}
	if c.WhatsApp.SendTimeout <= 0 {
		return errors.Errorf("whatsapp.send_timeout must be positive")
	}
	if c.WhatsApp.ConnectTimeout <= 0 {
		return errors.Errorf("whatsapp.connect_timeout must be positive")
	}
	if c.Simulate.FailureRate < 0 || c.Simulate.FailureRate > 1 {
		return errors.Errorf("simulate.failure_rate %v out of [0,1]", c.Simulate.FailureRate)
	}
	if c.Uploads.Dir == "" {
		return errors.Errorf("uploads.dir is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.Errorf("uploads.max_bytes must be positive")
	}
	if c.Broadcast.Throttle <= 0 || c.Broadcast.SnapshotInterval <= 0 {
		return errors.Errorf("broadcast intervals must be positive")
	}
	if c.Registry.FailureThreshold < 1 {
		return errors.Errorf("registry.failure_threshold must be at least 1")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CredsDir is where uploaded credential files are stored, one per session.
func (c *Config) CredsDir() string {
	return filepath.Join(c.Uploads.Dir, "creds")
}
