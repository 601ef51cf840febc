package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/pricefeed/internal/core"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EndpointsEnv names the comma-separated RPC endpoint list.
const EndpointsEnv = "RPC_ENDPOINTS"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Warmup   WarmupConfig   `mapstructure:"warmup"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// RPCConfig holds blockchain endpoint settings.
type RPCConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	HandleTTL   time.Duration `mapstructure:"handle_ttl"`
}

// ResolverConfig holds retry and timeout bounds.
type ResolverConfig struct {
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Backoff        time.Duration `mapstructure:"backoff"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MemberTimeout  time.Duration `mapstructure:"member_timeout"`
	MaxBatch       int           `mapstructure:"max_batch"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// WarmupConfig schedules periodic cache refreshes.
type WarmupConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Schedule string   `mapstructure:"schedule"`
	Symbols  []string `mapstructure:"symbols"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. A .env file in the working directory,
// when present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return unmarshal(v)
}

// FromEnv builds configuration from defaults and environment variables only.
func FromEnv() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return unmarshal(newViper())
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("rpc.endpoints", EndpointsEnv)
	v.BindEnv("server.api_key", "API_KEY")
	v.BindEnv("cache.redis.addr", "REDIS_ADDR")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.RPC.Endpoints = SplitList(cfg.RPC.Endpoints)
	cfg.Warmup.Symbols = SplitList(cfg.Warmup.Symbols)
	return &cfg, nil
}

// SplitList flattens comma-separated entries and drops blanks.
func SplitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", "")
	v.SetDefault("rpc.endpoints", []string{})
	v.SetDefault("rpc.call_timeout", d.RPC.CallTimeout)
	v.SetDefault("rpc.handle_ttl", d.RPC.HandleTTL)
	v.SetDefault("resolver.attempt_timeout", d.Resolver.AttemptTimeout)
	v.SetDefault("resolver.backoff", d.Resolver.Backoff)
	v.SetDefault("resolver.max_retries", d.Resolver.MaxRetries)
	v.SetDefault("resolver.member_timeout", d.Resolver.MemberTimeout)
	v.SetDefault("resolver.max_batch", d.Resolver.MaxBatch)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", d.Cache.Redis.Prefix)
	v.SetDefault("warmup.enabled", d.Warmup.Enabled)
	v.SetDefault("warmup.schedule", d.Warmup.Schedule)
	v.SetDefault("warmup.symbols", d.Warmup.Symbols)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		RPC: RPCConfig{
			CallTimeout: 5 * time.Second,
			HandleTTL:   60 * time.Second,
		},
		Resolver: ResolverConfig{
			AttemptTimeout: 7 * time.Second,
			Backoff:        time.Second,
			MaxRetries:     2,
			MemberTimeout:  8 * time.Second,
			MaxBatch:       10,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     30 * time.Second,
			Redis: RedisConfig{
				Prefix: "pricefeed:quote:",
			},
		},
		Warmup: WarmupConfig{
			Enabled:  false,
			Schedule: "@every 20s",
			Symbols:  []string{"ETH", "BTC"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Resolver validation
	r := c.Resolver
	if r.AttemptTimeout <= 0 || r.MemberTimeout <= 0 || r.Backoff <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("resolver timeouts must be positive"))
	}
	if r.MaxRetries < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries))
	}
	if r.MaxBatch < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_batch must be at least 1, got %d", r.MaxBatch))
	}
	if c.RPC.CallTimeout <= 0 || c.RPC.HandleTTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rpc call_timeout and handle_ttl must be positive"))
	}

	// Cache validation
	if c.Cache.TTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis addr required when cache backend is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	// Warmup validation
	if c.Warmup.Enabled {
		if _, err := cron.ParseStandard(c.Warmup.Schedule); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("invalid warmup schedule %q: %w", c.Warmup.Schedule, err))
		}
		if len(c.Warmup.Symbols) == 0 {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("warmup enabled without symbols"))
		}
	}

	return nil
}
