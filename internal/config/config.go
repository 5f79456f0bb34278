// Package config defines the top-level configuration for the rebeld protocol
// node and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by REBEL_* environment variables.
type Config struct {
	Operator   OperatorConfig   `toml:"operator"`
	Protocol   ProtocolConfig   `toml:"protocol"`
	Governance GovernanceConfig `toml:"governance"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Executor   ExecutorConfig   `toml:"executor"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OperatorConfig locates the node operator's ed25519 key. The operator is the
// protocol admin at bootstrap and the executor identity for queued requests.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ProtocolConfig holds the economic parameters applied at bootstrap and the
// execution venue's exchange rate.
type ProtocolConfig struct {
	LiquidityMode    string `toml:"liquidity_mode"`
	FeeBps           int    `toml:"fee_bps"`
	CreatorShareBps  int    `toml:"creator_share_bps"`
	ExecutorShareBps int    `toml:"executor_share_bps"`
	TreasuryShareBps int    `toml:"treasury_share_bps"`
	RateNumerator    uint64 `toml:"rate_numerator"`
	RateDenominator  uint64 `toml:"rate_denominator"`

	Bootstrap        bool   `toml:"bootstrap"`
	DistributeTokens bool   `toml:"distribute_tokens"`
	OperatorFunding  uint64 `toml:"operator_funding"`
	InitialLiquidity uint64 `toml:"initial_liquidity"`
	VenueReserve     uint64 `toml:"venue_reserve"`
}

// GovernanceConfig holds DAO voting parameters. Zero values take the
// governance program defaults.
type GovernanceConfig struct {
	QuorumPercentage  int      `toml:"quorum_percentage"`
	VotingPeriod      duration `toml:"voting_period"`
	ProposalThreshold uint64   `toml:"proposal_threshold"`
}

// PostgresConfig holds the ledger journal's PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	WriterLockTTL duration `toml:"writer_lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the event archive job.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// ExecutorConfig controls the execution request consumer.
type ExecutorConfig struct {
	Enabled      bool     `toml:"enabled"`
	Stream       string   `toml:"stream"`
	BatchSize    int      `toml:"batch_size"`
	PollInterval duration `toml:"poll_interval"`
	DedupTTL     duration `toml:"dedup_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// CacheTTL bounds how stale leaderboard and overview responses may be.
	CacheTTL    duration `toml:"cache_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Protocol: ProtocolConfig{
			LiquidityMode:    "pool",
			FeeBps:           9,
			CreatorShareBps:  4000,
			ExecutorShareBps: 4000,
			TreasuryShareBps: 2000,
			RateNumerator:    108,
			RateDenominator:  100,
			Bootstrap:        true,
			DistributeTokens: true,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "rebels",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:       true,
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			WriterLockTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rebel-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Executor: ExecutorConfig{
			Enabled:      true,
			Stream:       "rebel:exec_requests",
			BatchSize:    16,
			PollInterval: duration{500 * time.Millisecond},
			DedupTTL:     duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			CacheTTL:    duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"StrategyExecuted", "ProposalExecuted", "TreasurySpent"},
		},
		Mode:     "node",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"node":    true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// maxFeeBps is the protocol cap on the flash-loan and vault fee.
const maxFeeBps = 100

var validLiquidityModes = map[string]bool{
	"pool":  true,
	"vault": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: node, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Operator. Every mode but archive runs the ledger and needs an identity.
	if mode != "archive" {
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
			errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
		}
	}

	// Protocol
	if !validLiquidityModes[strings.ToLower(c.Protocol.LiquidityMode)] {
		errs = append(errs, fmt.Sprintf("protocol: liquidity_mode must be pool or vault, got %q", c.Protocol.LiquidityMode))
	}
	if c.Protocol.FeeBps < 0 || c.Protocol.FeeBps > maxFeeBps {
		errs = append(errs, fmt.Sprintf("protocol: fee_bps must be 0-%d, got %d", maxFeeBps, c.Protocol.FeeBps))
	}
	shares := []struct {
		name string
		v    int
	}{
		{"creator_share_bps", c.Protocol.CreatorShareBps},
		{"executor_share_bps", c.Protocol.ExecutorShareBps},
		{"treasury_share_bps", c.Protocol.TreasuryShareBps},
	}
	sum := 0
	for _, s := range shares {
		if s.v < 0 || s.v > 10_000 {
			errs = append(errs, fmt.Sprintf("protocol: %s must be 0-10000, got %d", s.name, s.v))
		}
		sum += s.v
	}
	if sum != 10_000 {
		errs = append(errs, fmt.Sprintf("protocol: profit shares must sum to 10000 bps, got %d", sum))
	}
	if c.Protocol.RateNumerator == 0 || c.Protocol.RateDenominator == 0 {
		errs = append(errs, "protocol: rate_numerator and rate_denominator must be > 0")
	}

	// Governance
	if c.Governance.QuorumPercentage < 0 || c.Governance.QuorumPercentage > 100 {
		errs = append(errs, fmt.Sprintf("governance: quorum_percentage must be 0-100, got %d", c.Governance.QuorumPercentage))
	}
	if c.Governance.VotingPeriod.Duration < 0 {
		errs = append(errs, "governance: voting_period must not be negative")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.WriterLockTTL.Duration < time.Second {
			errs = append(errs, "redis: writer_lock_ttl must be at least 1s")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Enabled && strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
	}

	// Executor
	if c.Executor.Enabled && mode == "node" {
		if !c.Redis.Enabled {
			errs = append(errs, "executor: requires redis.enabled")
		}
		if c.Executor.Stream == "" {
			errs = append(errs, "executor: stream must not be empty")
		}
		if c.Executor.BatchSize < 1 {
			errs = append(errs, "executor: batch_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		// The caller header is an identity claim; only key holders may make it.
		if mode != "archive" && strings.TrimSpace(c.Server.APIKey) == "" {
			errs = append(errs, "server: api_key is required when the server is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
