package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "30s"
// or "1h" as well as raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Integer scalars are taken as
// nanoseconds; yaml decodes them into strings too, so the tag decides.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return err
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PostgresConfig describes a Postgres connection. Host may alternatively be a
// full postgres:// DSN, in which case the remaining fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost        string   `yaml:"redis_host"`
		CardCacheDB      int      `yaml:"card_cache_db"`
		RateLimitDB      int      `yaml:"rate_limit_db"`
		CardCacheEnabled bool     `yaml:"card_cache_enabled"`
		CardCacheTTL     Duration `yaml:"card_cache_ttl"`
	} `yaml:"cache"`

	Render struct {
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int    `yaml:"chrome_pool_size"`
		UserDataDir     string `yaml:"user_data_dir"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
	} `yaml:"render"`

	Limits struct {
		MaxImageBytes int `yaml:"max_image_bytes"`
	} `yaml:"limits"`

	RateLimiter struct {
		Interval          Duration `yaml:"interval"`
		UserLimit         int      `yaml:"user_limit"`
		EnableUserLimiter bool     `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	Store struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"store"`

	Sync struct {
		Schedule       string   `yaml:"schedule"`
		UserAgent      string   `yaml:"user_agent"`
		CountryDelay   Duration `yaml:"country_delay"`
		EnrichDelay    Duration `yaml:"enrich_delay"`
		RequestTimeout Duration `yaml:"request_timeout"`
	} `yaml:"sync"`
}

const defaultPath = "config.yaml"

// Load reads the configuration from CONFIG_PATH or ./config.yaml.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the configuration file at path. Invalid
// configuration is a deployment error, so it panics rather than limping on.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}
	validate(&cfg)
	return cfg
}

func defaults() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":8080"
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 14
	cfg.Cache.RedisHost = "localhost:6379"
	cfg.Cache.CardCacheEnabled = true
	cfg.Cache.CardCacheTTL = Duration(24 * time.Hour)
	cfg.Render.ChromePoolSize = 2
	cfg.Render.TimeoutSecs = 15
	cfg.Limits.MaxImageBytes = 5 * 1024 * 1024
	cfg.RateLimiter.Interval = Duration(time.Minute)
	cfg.Sync.UserAgent = "ReactorMap/2.0 (https://reactormap.com)"
	cfg.Sync.CountryDelay = Duration(500 * time.Millisecond)
	cfg.Sync.EnrichDelay = Duration(100 * time.Millisecond)
	cfg.Sync.RequestTimeout = Duration(30 * time.Second)
	return cfg
}

func validate(cfg *Config) {
	if cfg.Server.Port == "" {
		panic("config: server.port must not be empty")
	}
	if cfg.Render.TimeoutSecs <= 0 {
		panic("config: render.timeout_secs must be positive")
	}
	if cfg.Render.ChromePoolSize < 0 {
		panic("config: render.chrome_pool_size must not be negative")
	}
	if cfg.Limits.MaxImageBytes <= 0 {
		panic("config: limits.max_image_bytes must be positive")
	}
	if cfg.RateLimiter.Interval <= 0 {
		panic("config: rate_limiter.interval must be positive")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		panic("config: rate_limiter.user_limit must not be negative")
	}
	if cfg.Cache.CardCacheTTL < 0 {
		panic("config: cache.card_cache_ttl must not be negative")
	}
}
