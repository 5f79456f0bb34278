package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REBEL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REBEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "REBEL_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "REBEL_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "REBEL_OPERATOR_KEY_PASSWORD")

	// ── Protocol ──
	setStr(&cfg.Protocol.LiquidityMode, "REBEL_PROTOCOL_LIQUIDITY_MODE")
	setInt(&cfg.Protocol.FeeBps, "REBEL_PROTOCOL_FEE_BPS")
	setInt(&cfg.Protocol.CreatorShareBps, "REBEL_PROTOCOL_CREATOR_SHARE_BPS")
	setInt(&cfg.Protocol.ExecutorShareBps, "REBEL_PROTOCOL_EXECUTOR_SHARE_BPS")
	setInt(&cfg.Protocol.TreasuryShareBps, "REBEL_PROTOCOL_TREASURY_SHARE_BPS")
	setUint64(&cfg.Protocol.RateNumerator, "REBEL_PROTOCOL_RATE_NUMERATOR")
	setUint64(&cfg.Protocol.RateDenominator, "REBEL_PROTOCOL_RATE_DENOMINATOR")
	setBool(&cfg.Protocol.Bootstrap, "REBEL_PROTOCOL_BOOTSTRAP")
	setBool(&cfg.Protocol.DistributeTokens, "REBEL_PROTOCOL_DISTRIBUTE_TOKENS")
	setUint64(&cfg.Protocol.OperatorFunding, "REBEL_PROTOCOL_OPERATOR_FUNDING")
	setUint64(&cfg.Protocol.InitialLiquidity, "REBEL_PROTOCOL_INITIAL_LIQUIDITY")
	setUint64(&cfg.Protocol.VenueReserve, "REBEL_PROTOCOL_VENUE_RESERVE")

	// ── Governance ──
	setInt(&cfg.Governance.QuorumPercentage, "REBEL_GOVERNANCE_QUORUM_PERCENTAGE")
	setDuration(&cfg.Governance.VotingPeriod, "REBEL_GOVERNANCE_VOTING_PERIOD")
	setUint64(&cfg.Governance.ProposalThreshold, "REBEL_GOVERNANCE_PROPOSAL_THRESHOLD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "REBEL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "REBEL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "REBEL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REBEL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REBEL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REBEL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REBEL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REBEL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REBEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REBEL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "REBEL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REBEL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REBEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REBEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REBEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REBEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REBEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REBEL_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.WriterLockTTL, "REBEL_REDIS_WRITER_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "REBEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "REBEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REBEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "REBEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REBEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REBEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REBEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REBEL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "REBEL_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "REBEL_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "REBEL_ARCHIVE_RETENTION_DAYS")

	// ── Executor ──
	setBool(&cfg.Executor.Enabled, "REBEL_EXECUTOR_ENABLED")
	setStr(&cfg.Executor.Stream, "REBEL_EXECUTOR_STREAM")
	setInt(&cfg.Executor.BatchSize, "REBEL_EXECUTOR_BATCH_SIZE")
	setDuration(&cfg.Executor.PollInterval, "REBEL_EXECUTOR_POLL_INTERVAL")
	setDuration(&cfg.Executor.DedupTTL, "REBEL_EXECUTOR_DEDUP_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REBEL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REBEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "REBEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "REBEL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "REBEL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "REBEL_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.CacheTTL, "REBEL_SERVER_CACHE_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REBEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REBEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REBEL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REBEL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "REBEL_MODE")
	setStr(&cfg.LogLevel, "REBEL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
