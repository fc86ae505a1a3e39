package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Withings  WithingsConfig  `yaml:"withings"`
	Transport TransportConfig `yaml:"transport"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Sync      SyncConfig      `yaml:"sync"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// AuthConfig protects the API with client credential tokens.
type AuthConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Secret   string             `yaml:"secret"`
	TokenTTL time.Duration      `yaml:"tokenTtl"`
	Clients  []ClientCredential `yaml:"clients"`
}

// ClientCredential is an API client with a bcrypt hashed secret.
type ClientCredential struct {
	ID         string `yaml:"id"`
	SecretHash string `yaml:"secretHash"`
}

// WithingsConfig holds the Withings consumer and data settings.
type WithingsConfig struct {
	BaseURL               string `yaml:"baseUrl"`
	ConsumerKey           string `yaml:"consumerKey"`
	ConsumerSecret        string `yaml:"consumerSecret"`
	IntradayDataAvailable bool   `yaml:"intradayDataAvailable"`
}

// TransportConfig tunes outbound vendor requests.
type TransportConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	CacheTTL       time.Duration `yaml:"cacheTtl"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the per-vendor circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"maxRequests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
}

// AccountsConfig controls access parameter persistence.
type AccountsConfig struct {
	TokenEncryptionKey string         `yaml:"tokenEncryptionKey"`
	Postgres           PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// CacheConfig controls the vendor response cache.
type CacheConfig struct {
	Prefix           string      `yaml:"prefix"`
	MemoryMaxEntries int         `yaml:"memoryMaxEntries"`
	Redis            RedisConfig `yaml:"redis"`
}

// RedisConfig contains connection information for cache storage.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ArchiveConfig points at the S3/R2 bucket that keeps raw vendor responses.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// SyncConfig schedules the periodic archive sync.
type SyncConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Lookback    time.Duration `yaml:"lookback"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_ENABLED"); v != "" {
		cfg.HTTP.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RETRY_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Retry.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v)
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = parsed
		}
	}
	if v := os.Getenv("WITHINGS_BASE_URL"); v != "" {
		cfg.Withings.BaseURL = v
	}
	if v := os.Getenv("WITHINGS_CONSUMER_KEY"); v != "" {
		cfg.Withings.ConsumerKey = v
	}
	if v := os.Getenv("WITHINGS_CONSUMER_SECRET"); v != "" {
		cfg.Withings.ConsumerSecret = v
	}
	if v := os.Getenv("WITHINGS_INTRADAY_DATA_AVAILABLE"); v != "" {
		cfg.Withings.IntradayDataAvailable = parseBool(v)
	}
	if v := os.Getenv("TRANSPORT_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Transport.Timeout = parsed
		}
	}
	if v := os.Getenv("TRANSPORT_CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Transport.CacheTTL = parsed
		}
	}
	if v := os.Getenv("TRANSPORT_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Transport.MaxRetries = parsed
		}
	}
	if v := os.Getenv("ACCOUNTS_TOKEN_ENCRYPTION_KEY"); v != "" {
		cfg.Accounts.TokenEncryptionKey = v
	}
	if v := os.Getenv("ACCOUNTS_POSTGRES_DSN"); v != "" {
		cfg.Accounts.Postgres.DSN = v
	}
	if v := os.Getenv("ACCOUNTS_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Accounts.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("CACHE_REDIS_ENABLED"); v != "" {
		cfg.Cache.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("CACHE_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("SYNC_ENABLED"); v != "" {
		cfg.Sync.Enabled = parseBool(v)
	}
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = parsed
		}
	}
	if v := os.Getenv("SYNC_LOOKBACK"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Lookback = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8083",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             30,
			},
			Retry: RetryConfig{
				Enabled:     false,
				MaxAttempts: 2,
				BaseBackoff: 150 * time.Millisecond,
			},
		},
		Auth: AuthConfig{
			Enabled:  false,
			TokenTTL: time.Hour,
		},
		Withings: WithingsConfig{
			BaseURL: "https://wbsapi.withings.net",
		},
		Transport: TransportConfig{
			Timeout:        15 * time.Second,
			MaxBodyBytes:   8 << 20,
			CacheTTL:       5 * time.Minute,
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:         5,
				Interval:            time.Minute,
				Timeout:             2 * time.Minute,
				ConsecutiveFailures: 5,
			},
		},
		Accounts: AccountsConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Cache: CacheConfig{
			Prefix:           "shim",
			MemoryMaxEntries: 1024,
		},
		Archive: ArchiveConfig{
			Bucket: "shim-responses",
			Region: "auto",
		},
		Sync: SyncConfig{
			Enabled:     false,
			Interval:    6 * time.Hour,
			Lookback:    48 * time.Hour,
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if c.Auth.Enabled {
		if strings.TrimSpace(c.Auth.Secret) == "" {
			return errors.New("auth.secret cannot be empty when auth is enabled")
		}
		if c.Auth.TokenTTL <= 0 {
			return errors.New("auth.tokenTtl must be positive")
		}
		if len(c.Auth.Clients) == 0 {
			return errors.New("auth.clients cannot be empty when auth is enabled")
		}
	}
	if strings.TrimSpace(c.Withings.BaseURL) == "" {
		return errors.New("withings.baseUrl cannot be empty")
	}
	if c.Transport.Timeout <= 0 {
		return errors.New("transport.timeout must be positive")
	}
	if c.Transport.MaxBodyBytes <= 0 {
		return errors.New("transport.maxBodyBytes must be positive")
	}
	if c.Transport.CacheTTL < 0 {
		return errors.New("transport.cacheTtl cannot be negative")
	}
	if c.Transport.MaxRetries < 0 {
		return errors.New("transport.maxRetries cannot be negative")
	}
	switch len(c.Accounts.TokenEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("accounts.tokenEncryptionKey must be 16, 24, or 32 bytes")
	}
	if c.Cache.MemoryMaxEntries < 0 {
		return errors.New("cache.memoryMaxEntries cannot be negative")
	}
	if c.Cache.Redis.Enabled && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return errors.New("cache.redis.addr cannot be empty when redis cache is enabled")
	}
	if c.Archive.Enabled {
		if strings.TrimSpace(c.Archive.Endpoint) == "" || strings.TrimSpace(c.Archive.Bucket) == "" {
			return errors.New("archive.endpoint and archive.bucket are required when archive is enabled")
		}
	}
	if c.Sync.Enabled {
		if c.Sync.Interval <= 0 {
			return errors.New("sync.interval must be positive")
		}
		if c.Sync.Lookback <= 0 {
			return errors.New("sync.lookback must be positive")
		}
	}
	return nil
}
