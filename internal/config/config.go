package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "ACTIVATION"

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" mapstructure:"level"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" mapstructure:"format"`     // json|console
	Sampling bool   `yaml:"sampling" mapstructure:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// TrustedProxies lists the peers (IPs or CIDRs) whose forwarding headers name the client.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies; a bare IP becomes a single-host prefix.
func (h HTTPConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, s := range h.TrustedProxies {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("http.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

type DatabaseConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"` // postgres|sqlite
	URL                string `yaml:"url" mapstructure:"url"`
	SQLitePath         string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	FallbackSQLitePath string `yaml:"fallback_sqlite_path" mapstructure:"fallback_sqlite_path"`
	MaxConns           int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"` // none|memory|redis
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type ActivationConfig struct {
	DefaultTTLDays  int           `yaml:"default_ttl_days" mapstructure:"default_ttl_days"`
	CleanupOnCreate bool          `yaml:"cleanup_on_create" mapstructure:"cleanup_on_create"`
	CleanupMaxAge   time.Duration `yaml:"cleanup_max_age" mapstructure:"cleanup_max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"` // 0 disables the worker
}

func (a ActivationConfig) DefaultTTL() time.Duration {
	return time.Duration(a.DefaultTTLDays) * 24 * time.Hour
}

type SecurityConfig struct {
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

type RateLimitConfig struct {
	Backend  string        `yaml:"backend" mapstructure:"backend"` // memory|redis
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
	Burst    int           `yaml:"burst" mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Activation ActivationConfig `yaml:"activation" mapstructure:"activation"`
	Security   SecurityConfig   `yaml:"security" mapstructure:"security"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	CORS       CORSConfig       `yaml:"cors" mapstructure:"cors"`

	Runtime RuntimeConfig `yaml:"-" mapstructure:"-"`
}

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			TrustedProxies:  []string{},
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "./data/activation.db",
			MaxConns:   10,
		},
		Cache: CacheConfig{Backend: "none", TTL: time.Minute},
		Activation: ActivationConfig{
			DefaultTTLDays:  365,
			CleanupOnCreate: true,
			CleanupMaxAge:   5 * time.Minute,
		},
		Security:  SecurityConfig{TokenTTL: time.Hour},
		RateLimit: RateLimitConfig{Backend: "memory", Requests: 10, Window: time.Minute, Burst: 5},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// keys lists every leaf setting so env overrides reach nested structs on Unmarshal.
var keys = []string{
	"log.level", "log.format", "log.sampling",
	"http.addr", "http.read_timeout", "http.write_timeout", "http.request_timeout", "http.shutdown_timeout", "http.trusted_proxies",
	"database.driver", "database.url", "database.sqlite_path", "database.fallback_sqlite_path", "database.max_conns",
	"redis.url", "redis.password", "redis.db",
	"cache.backend", "cache.ttl",
	"activation.default_ttl_days", "activation.cleanup_on_create", "activation.cleanup_max_age", "activation.cleanup_interval",
	"security.api_key", "security.jwt_secret", "security.token_ttl",
	"ratelimit.backend", "ratelimit.requests", "ratelimit.window", "ratelimit.burst",
	"cors.allowed_origins",
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.sampling", d.Log.Sampling)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.request_timeout", d.HTTP.RequestTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.trusted_proxies", d.HTTP.TrustedProxies)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.fallback_sqlite_path", d.Database.FallbackSQLitePath)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("activation.default_ttl_days", d.Activation.DefaultTTLDays)
	v.SetDefault("activation.cleanup_on_create", d.Activation.CleanupOnCreate)
	v.SetDefault("activation.cleanup_max_age", d.Activation.CleanupMaxAge)
	v.SetDefault("activation.cleanup_interval", d.Activation.CleanupInterval)
	v.SetDefault("security.api_key", d.Security.APIKey)
	v.SetDefault("security.jwt_secret", d.Security.JWTSecret)
	v.SetDefault("security.token_ttl", d.Security.TokenTTL)
	v.SetDefault("ratelimit.backend", d.RateLimit.Backend)
	v.SetDefault("ratelimit.requests", d.RateLimit.Requests)
	v.SetDefault("ratelimit.window", d.RateLimit.Window)
	v.SetDefault("ratelimit.burst", d.RateLimit.Burst)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
}

// Load reads configPath (optional) and ACTIVATION_* environment overrides.
// An empty configPath looks for config.yaml in the working directory and /etc/activation-platform.
func Load(configPath string, dev bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/activation-platform")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %q: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the minimal checks needed before wiring adapters.
func (c *Config) Validate() error {
	if _, err := c.HTTP.TrustedProxyPrefixes(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis rate limiter")
		}
	default:
		return fmt.Errorf("ratelimit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("ratelimit.requests and ratelimit.window must be positive")
	}

	if c.Activation.DefaultTTLDays <= 0 {
		return errors.New("activation.default_ttl_days must be positive")
	}
	if c.Activation.CleanupMaxAge <= 0 {
		c.Activation.CleanupMaxAge = 5 * time.Minute
	}
	if c.Security.APIKey == "" && c.Security.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("security.api_key or security.jwt_secret is required outside dev mode")
	}
	if c.Security.TokenTTL <= 0 {
		c.Security.TokenTTL = time.Hour
	}
	return nil
}

// WriteDefault writes the default configuration as YAML, durations in Go notation ("5m0s").
func WriteDefault(w io.Writer) error {
	v := viper.New()
	setDefaults(v)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(readable(v.AllSettings())); err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	return enc.Close()
}

func readable(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case map[string]any:
			out[k] = readable(t)
		case time.Duration:
			out[k] = t.String()
		default:
			out[k] = val
		}
	}
	return out
}
