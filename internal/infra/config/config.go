package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/pkg/env"
	"gopkg.in/yaml.v3"
)

type ProvisionConfig struct {
	Addr         string
	AllowOrigins string
	LogLevel     slog.Level

	Executor      *ExecutorConfig
	Timeouts      *AdapterTimeouts
	Reaper        *ReaperConfig
	Redis         *RedisConfig
	Defaults      entity.ProviderSettings
	CloudflareAPI string
	Shutdown      time.Duration
	CredsKey      string
}

type ExecutorConfig struct {
	LeaseTTL       time.Duration
	HeartbeatEvery time.Duration
}

type AdapterTimeouts struct {
	ControlPanel time.Duration
	DNS          time.Duration
	Installer    time.Duration
}

type ReaperConfig struct {
	Interval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func (r *RedisConfig) Enabled() bool {
	return r != nil && r.Addr != ""
}

func NewProvisionConfig() (*ProvisionConfig, error) {
	defaults, err := LoadProviderDefaults(os.Getenv("PROVIDER_DEFAULTS_FILE"))
	if err != nil {
		return nil, err
	}
	return &ProvisionConfig{
		Addr:         env.GetEnv("API_ADDR", ":8080"),
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000"),
		LogLevel:     ParseLevel(env.GetEnv("LOG_LEVEL", "info")),
		Executor:     NewExecutorConfig(),
		Timeouts:     NewAdapterTimeouts(),
		Reaper: &ReaperConfig{
			Interval: env.GetDuration("REAPER_INTERVAL", 15*time.Second),
		},
		Redis: &RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       env.GetInt("REDIS_DB", 0),
			Channel:  env.GetEnv("REDIS_CHANNEL", "provisioner:ledger"),
		},
		Defaults:      defaults,
		CloudflareAPI: os.Getenv("CLOUDFLARE_API_URL"),
		Shutdown:      env.GetDuration("SHUTDOWN_GRACE", 30*time.Second),
		CredsKey:      os.Getenv("CREDENTIALS_KEY"),
	}, nil
}

func NewExecutorConfig() *ExecutorConfig {
	ttl := env.GetDuration("STEP_LEASE_TTL", 90*time.Second)
	return &ExecutorConfig{
		LeaseTTL:       ttl,
		HeartbeatEvery: env.GetDuration("STEP_HEARTBEAT_INTERVAL", ttl/3),
	}
}

func NewAdapterTimeouts() *AdapterTimeouts {
	return &AdapterTimeouts{
		ControlPanel: env.GetDuration("CPANEL_TIMEOUT", 30*time.Second),
		DNS:          env.GetDuration("DNS_TIMEOUT", 30*time.Second),
		Installer:    env.GetDuration("INSTALLER_TIMEOUT", 300*time.Second),
	}
}

// LoadProviderDefaults reads provider settings that apply to every project unless the
// project overrides them. An empty path yields no defaults.
func LoadProviderDefaults(path string) (entity.ProviderSettings, error) {
	var defaults entity.ProviderSettings
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read provider defaults %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return defaults, fmt.Errorf("parse provider defaults %s: %w", path, err)
	}
	slog.Info("loaded provider defaults", "file", path)
	return defaults, nil
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
