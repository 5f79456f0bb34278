package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/mevrebels/internal/blob/s3"
	"github.com/alanyoungcy/mevrebels/internal/cache/redis"
	"github.com/alanyoungcy/mevrebels/internal/config"
	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/notify"
	"github.com/alanyoungcy/mevrebels/internal/server/handler"
	"github.com/alanyoungcy/mevrebels/internal/store/postgres"
)

// Dependencies bundles the infrastructure the run modes build on. Fields for
// disabled backends stay nil. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Postgres
	Journal    *postgres.Journal
	EventStore *postgres.EventStore
	AuditStore domain.AuditStore

	// Redis
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	Publisher   *redis.EventPublisher
	Responses   domain.ResponseCache

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.EventArchiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks pings every wired backend for the health endpoint.
	HealthChecks map[string]handler.HealthCheck
}

// needsLedgerBackends reports whether the mode runs a ledger and therefore
// wants the journal and the Redis fan-out.
func needsLedgerBackends(mode string) bool {
	return mode == "node" || mode == "server"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewJournal(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Health
	}

	// --- Redis ---
	if cfg.Redis.Enabled && needsLedgerBackends(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Publisher = redis.NewEventPublisher(redisClient)
		deps.Responses = redis.NewResponseCache(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.HealthChecks["s3"] = s3Client.Health

		// The archiver reads from and prunes the Postgres event log.
		if deps.EventStore != nil {
			deps.Archiver = s3blob.NewEventArchiver(s3blob.ArchiverOptions{
				Events: deps.EventStore,
				Writer: writer,
				Reader: reader,
				Audit:  deps.AuditStore,
				Prune:  true,
				Logger: logger,
			})
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
