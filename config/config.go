// Package config loads the engine and keeper configuration from a
// YAML file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full settlement-engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig holds the economic parameters.
type EngineConfig struct {
	SeedCollateral      int64    `yaml:"seed_collateral"`
	FeeBps              int64    `yaml:"fee_bps"`
	MinDurationSeconds  int64    `yaml:"min_duration_seconds"`
	MinBlockWindow      uint64   `yaml:"min_block_window"`
	StalenessSeconds    int64    `yaml:"staleness_seconds"`
	VoidGraceSeconds    int64    `yaml:"void_grace_seconds"`
	AuthorizedResolvers []string `yaml:"authorized_resolvers"`
}

// StorageConfig selects the store backend. An empty DatabaseURL means
// in-memory; RedisURL adds the read-through cache in front of Postgres.
type StorageConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	CacheTTLSeconds int64  `yaml:"cache_ttl_seconds"`
}

// OracleConfig configures the chain sampler. An empty RPCURL selects
// the static development sampler.
type OracleConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// KeeperConfig configures the keeper process.
type KeeperConfig struct {
	EngineURL         string   `yaml:"engine_url"`
	IntervalSeconds   int64    `yaml:"interval_seconds"`
	ResolverKey       string   `yaml:"resolver_key"`
	SigningKeyHex     string   `yaml:"signing_key_hex"`
	PriceFeeds        []string `yaml:"price_feeds"`
	QuoteAPIBase      string   `yaml:"quote_api_base"`
	QuoteScale        int64    `yaml:"quote_scale"`
	QuoteRPS          float64  `yaml:"quote_rps"`
	ContentAPIBase    string   `yaml:"content_api_base"`
	ContentCredential string   `yaml:"content_credential"`
}

// LogConfig controls the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path and applies .env plus environment
// overrides on top. A missing file is not an error: defaults plus
// environment are enough to boot a development instance.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// MinDuration returns the market minimum lifetime as a Duration.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.Engine.MinDurationSeconds) * time.Second
}

// StalenessWindow returns the oracle staleness window as a Duration.
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.Engine.StalenessSeconds) * time.Second
}

// VoidGracePeriod returns the post-staleness void grace as a Duration.
func (c *Config) VoidGracePeriod() time.Duration {
	return time.Duration(c.Engine.VoidGraceSeconds) * time.Second
}

// KeeperInterval returns the keeper polling cadence as a Duration.
func (c *Config) KeeperInterval() time.Duration {
	return time.Duration(c.Keeper.IntervalSeconds) * time.Second
}

// CacheTTL returns the Redis cache TTL as a Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Storage.CacheTTLSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Oracle.RPCURL = v
	}
	if v := os.Getenv("ENGINE_URL"); v != "" {
		cfg.Keeper.EngineURL = v
	}
	if v := os.Getenv("RESOLVER_KEY"); v != "" {
		cfg.Keeper.ResolverKey = v
	}
	if v := os.Getenv("SIGNING_KEY_HEX"); v != "" {
		cfg.Keeper.SigningKeyHex = v
	}
	if v := os.Getenv("CONTENT_CREDENTIAL"); v != "" {
		cfg.Keeper.ContentCredential = v
	}
	if v := os.Getenv("KEEPER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Keeper.IntervalSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Engine.SeedCollateral <= 0 {
		cfg.Engine.SeedCollateral = 10
	}
	if cfg.Engine.FeeBps <= 0 {
		cfg.Engine.FeeBps = 200
	}
	if cfg.Engine.MinDurationSeconds <= 0 {
		cfg.Engine.MinDurationSeconds = 3600
	}
	if cfg.Engine.MinBlockWindow == 0 {
		cfg.Engine.MinBlockWindow = 100
	}
	if cfg.Engine.StalenessSeconds <= 0 {
		cfg.Engine.StalenessSeconds = 300
	}
	if cfg.Engine.VoidGraceSeconds <= 0 {
		cfg.Engine.VoidGraceSeconds = 86400
	}
	if cfg.Storage.CacheTTLSeconds <= 0 {
		cfg.Storage.CacheTTLSeconds = 30
	}
	if cfg.Keeper.EngineURL == "" {
		cfg.Keeper.EngineURL = "http://localhost:8080"
	}
	if cfg.Keeper.IntervalSeconds <= 0 {
		cfg.Keeper.IntervalSeconds = 15
	}
	if cfg.Keeper.QuoteScale <= 0 {
		cfg.Keeper.QuoteScale = 100
	}
	if cfg.Keeper.QuoteRPS <= 0 {
		cfg.Keeper.QuoteRPS = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
