package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "crucible.yml"

// Environment variables that override file values.
const (
	EnvRedisURL  = "CRUCIBLE_REDIS_URL"
	EnvNamespace = "CRUCIBLE_NAMESPACE"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// CrucibleConfig represents the top-level crucible.yml configuration
type CrucibleConfig struct {
	Version    string            `yaml:"version"`
	Storage    *StorageConfig    `yaml:"storage,omitempty"`
	Generative *GenerativeConfig `yaml:"generative,omitempty"`
	Workspace  *WorkspaceConfig  `yaml:"workspace,omitempty"`
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Services   *ServicesConfig   `yaml:"services,omitempty"`
}

// StorageConfig selects where the cache, library, snapshots and stored credential live
type StorageConfig struct {
	Backend   string `yaml:"backend"`             // memory, file or redis
	Path      string `yaml:"path,omitempty"`      // Directory for the file backend
	RedisURL  string `yaml:"redis_url,omitempty"` // redis://host:port/db for the redis backend
	Namespace string `yaml:"namespace,omitempty"` // Key prefix segment, default "default"
}

// GenerativeConfig configures the generative resolver
type GenerativeConfig struct {
	Endpoint        string        `yaml:"endpoint,omitempty"`
	Model           string        `yaml:"model,omitempty"`
	MaxOutputTokens int           `yaml:"max_output_tokens,omitempty"`
	Temperature     *float64      `yaml:"temperature,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	CredentialEnv   []string      `yaml:"credential_env,omitempty"`          // Env vars checked for the API key, in order
	FallbackEnv     string        `yaml:"fallback_credential_env,omitempty"` // Env var holding the shared fallback key
}

// WorkspaceConfig tunes canvas interaction
type WorkspaceConfig struct {
	HitRadius    float64 `yaml:"hit_radius,omitempty"`
	HistoryLimit *int    `yaml:"history_limit,omitempty"` // 0 = unbounded
}

// ServerConfig configures `crucible serve`
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// ServicesConfig specifies the locally provisioned Redis for `crucible store up`
type ServicesConfig struct {
	Redis *ServiceOverride `yaml:"redis,omitempty"`
}

// ServiceOverride allows overriding the default service image and host port
type ServiceOverride struct {
	Image string `yaml:"image,omitempty"`
	Port  int    `yaml:"port,omitempty"`
}

// Defaults applied by Validate.
const (
	DefaultStoragePath   = ".crucible"
	DefaultNamespace     = "default"
	DefaultHitRadius     = 40.0
	DefaultHistoryLimit  = 100
	DefaultServerAddr    = "127.0.0.1:8080"
	DefaultRedisImage    = "redis:7-alpine"
	DefaultRedisHostPort = 6379
)

// Default returns a validated configuration with every default applied.
func Default() *CrucibleConfig {
	cfg := &CrucibleConfig{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate performs strict validation on the configuration and fills defaults
func (c *CrucibleConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Generative == nil {
		c.Generative = &GenerativeConfig{}
	}
	if err := c.Generative.Validate(); err != nil {
		return err
	}

	if c.Workspace == nil {
		c.Workspace = &WorkspaceConfig{}
	}
	if c.Workspace.HitRadius == 0 {
		c.Workspace.HitRadius = DefaultHitRadius
	}
	if c.Workspace.HitRadius < 0 {
		return fmt.Errorf("workspace.hit_radius must be positive, got %v", c.Workspace.HitRadius)
	}
	if c.Workspace.HistoryLimit == nil {
		limit := DefaultHistoryLimit
		c.Workspace.HistoryLimit = &limit
	}
	if *c.Workspace.HistoryLimit < 0 {
		return fmt.Errorf("workspace.history_limit must be >= 0 (0 = unlimited), got %d", *c.Workspace.HistoryLimit)
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	if c.Services == nil {
		c.Services = &ServicesConfig{}
	}
	if c.Services.Redis == nil {
		c.Services.Redis = &ServiceOverride{}
	}
	if c.Services.Redis.Image == "" {
		c.Services.Redis.Image = DefaultRedisImage
	}
	if c.Services.Redis.Port == 0 {
		c.Services.Redis.Port = DefaultRedisHostPort
	}
	if c.Services.Redis.Port < 0 || c.Services.Redis.Port > 65535 {
		return fmt.Errorf("services.redis.port out of range: %d", c.Services.Redis.Port)
	}

	return nil
}

// Validate checks the storage section and applies defaults
func (s *StorageConfig) Validate() error {
	if s.Backend == "" {
		if s.RedisURL != "" {
			s.Backend = BackendRedis
		} else {
			s.Backend = BackendMemory
		}
	}

	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.Path == "" {
			s.Path = DefaultStoragePath
		}
	case BackendRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %q (must be 'memory', 'file' or 'redis')", s.Backend)
	}

	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if strings.ContainsAny(s.Namespace, ": ") {
		return fmt.Errorf("storage.namespace %q must not contain ':' or spaces", s.Namespace)
	}
	return nil
}

// Validate checks the generative section. Unset resolver fields are left zero
// so the resolver applies its own defaults.
func (g *GenerativeConfig) Validate() error {
	if g.MaxOutputTokens < 0 {
		return fmt.Errorf("generative.max_output_tokens must be >= 0, got %d", g.MaxOutputTokens)
	}
	if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
		return fmt.Errorf("generative.temperature must be between 0 and 2, got %v", *g.Temperature)
	}
	if g.Timeout < 0 {
		return fmt.Errorf("generative.timeout must be >= 0, got %s", g.Timeout)
	}
	for _, name := range g.CredentialEnv {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("generative.credential_env contains an empty variable name")
		}
	}
	return nil
}

// TemperatureOrZero returns the configured temperature, or 0 to use the resolver default.
func (g *GenerativeConfig) TemperatureOrZero() float64 {
	if g.Temperature == nil {
		return 0
	}
	return *g.Temperature
}

// Load reads, parses and validates a crucible.yml file
func Load(path string) (*CrucibleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CrucibleConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault is Load, except a missing file yields the default configuration.
// Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*CrucibleConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values from the environment and revalidates.
func (c *CrucibleConfig) ApplyEnv(getenv func(string) string) error {
	changed := false
	if url := getenv(EnvRedisURL); url != "" {
		c.Storage.RedisURL = url
		c.Storage.Backend = BackendRedis
		changed = true
	}
	if ns := getenv(EnvNamespace); ns != "" {
		c.Storage.Namespace = ns
		changed = true
	}
	if !changed {
		return nil
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}
