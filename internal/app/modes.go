package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mevrebels/internal/analytics"
	"github.com/alanyoungcy/mevrebels/internal/archive"
	s3blob "github.com/alanyoungcy/mevrebels/internal/blob/s3"
	"github.com/alanyoungcy/mevrebels/internal/crypto"
	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/executor"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/notify"
	"github.com/alanyoungcy/mevrebels/internal/protocol"
	"github.com/alanyoungcy/mevrebels/internal/server"
	"github.com/alanyoungcy/mevrebels/internal/server/handler"
	"github.com/alanyoungcy/mevrebels/internal/server/ws"
)

// writerLockKey guards the single ledger writer of a deployment.
const writerLockKey = "ledger:writer"

// runtime is the ledger and its program services for this process.
type runtime struct {
	ledger   *ledger.Ledger
	protocol *protocol.Protocol
	operator solana.PrivateKey
}

// NodeMode runs the full node: ledger writer, HTTP API, exec-request
// executor, notifications, and the scheduled archive.
func (a *App) NodeMode(ctx context.Context, deps *Dependencies) error {
	return a.runLedger(ctx, deps, true)
}

// ServerMode runs the ledger writer behind the HTTP API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	return a.runLedger(ctx, deps, false)
}

// ArchiveMode performs one archive run and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires postgres and s3")
	}
	sched, err := archive.NewScheduler(deps.Archiver, a.cfg.Archive.Cron, a.cfg.Archive.RetentionDays, a.root)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	n, err := sched.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("events", n),
		slog.Time("cutoff", sched.Cutoff()),
	)
	return nil
}

func (a *App) runLedger(ctx context.Context, deps *Dependencies, node bool) error {
	a.logger.InfoContext(ctx, "starting ledger",
		slog.String("mode", a.cfg.Mode),
		slog.String("liquidity_mode", a.cfg.Protocol.LiquidityMode),
	)

	g, ctx := errgroup.WithContext(ctx)

	lock, err := a.acquireWriterLock(ctx, deps)
	if err != nil {
		return err
	}
	if lock != nil {
		defer lock.Unlock()
		g.Go(func() error {
			return a.keepWriterLock(ctx, lock)
		})
	}

	rt, err := a.openRuntime(ctx, g, deps, node)
	if err != nil {
		return err
	}

	var execStats handler.ExecutorStats
	if node && a.cfg.Executor.Enabled {
		if deps.SignalBus == nil {
			a.logger.WarnContext(ctx, "executor enabled without redis; exec requests will not be consumed")
		} else {
			exec := executor.NewExecutor(deps.SignalBus, rt.protocol.Engine, rt.operator.PublicKey(), executor.Options{
				Stream:       a.cfg.Executor.Stream,
				BatchSize:    a.cfg.Executor.BatchSize,
				PollInterval: a.cfg.Executor.PollInterval.Duration,
				DedupTTL:     a.cfg.Executor.DedupTTL.Duration,
			}, a.root)
			if deps.Notifier.Enabled() {
				exec.SetAlerter(deps.Notifier)
			}
			execStats = exec
			g.Go(func() error {
				return exec.Run(ctx)
			})
		}
	}

	if node && a.cfg.Archive.Enabled && deps.Archiver != nil {
		sched, err := archive.NewScheduler(deps.Archiver, a.cfg.Archive.Cron, a.cfg.Archive.RetentionDays, a.root)
		if err != nil {
			return fmt.Errorf("app: archive: %w", err)
		}
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, rt, execStats)
	}

	return g.Wait()
}

// acquireWriterLock takes the deployment-wide ledger writer lock. Without
// Redis there is no lock and the process is assumed to be the only writer.
func (a *App) acquireWriterLock(ctx context.Context, deps *Dependencies) (domain.Lock, error) {
	if deps.LockManager == nil {
		a.logger.WarnContext(ctx, "redis disabled; running without a ledger writer lock")
		return nil, nil
	}
	lock, err := deps.LockManager.Acquire(ctx, writerLockKey, a.cfg.Redis.WriterLockTTL.Duration)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, fmt.Errorf("app: another node holds the ledger writer lock: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("app: writer lock: %w", err)
	}
	a.logger.InfoContext(ctx, "acquired ledger writer lock",
		slog.Duration("ttl", a.cfg.Redis.WriterLockTTL.Duration),
	)
	return lock, nil
}

// keepWriterLock refreshes the lock at a third of its TTL. Losing the lock
// stops the process so two writers never commit concurrently.
func (a *App) keepWriterLock(ctx context.Context, lock domain.Lock) error {
	ttl := a.cfg.Redis.WriterLockTTL.Duration
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := lock.Extend(ctx, ttl)
			if errors.Is(err, domain.ErrLockLost) {
				return fmt.Errorf("app: ledger writer lock lost: %w", err)
			}
			if err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "writer lock refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// openRuntime restores the ledger from the journal, attaches the event sinks,
// bootstraps missing singletons when configured, and wires the programs.
func (a *App) openRuntime(ctx context.Context, g *errgroup.Group, deps *Dependencies, node bool) (*runtime, error) {
	operator, err := crypto.LoadOperatorKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Operator.PrivateKey,
		EncryptedKeyPath: a.cfg.Operator.EncryptedKeyPath,
		KeyPassword:      a.cfg.Operator.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: operator key: %w", err)
	}

	var journal ledger.Journal
	if deps.Journal != nil {
		journal = deps.Journal
	}
	l := ledger.New(ledger.Options{
		Codec:   protocol.NewCodec(),
		Journal: journal,
		Logger:  a.root,
	})

	if deps.Journal != nil {
		entries, seq, err := deps.Journal.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load journal snapshot: %w", err)
		}
		if err := l.Restore(entries, seq); err != nil {
			return nil, fmt.Errorf("app: restore ledger: %w", err)
		}
		a.logger.InfoContext(ctx, "ledger restored",
			slog.Int("records", len(entries)),
			slog.Uint64("seq", seq),
		)
	} else {
		a.logger.WarnContext(ctx, "postgres disabled; ledger state is in-memory only")
	}

	if deps.Publisher != nil {
		l.AddSink(deps.Publisher)
	}
	if node && deps.Notifier.Enabled() {
		sink := notify.NewEventSink(deps.Notifier, 0, a.root)
		l.AddSink(sink)
		g.Go(func() error {
			return sink.Run(ctx)
		})
	}

	mode := strings.ToLower(a.cfg.Protocol.LiquidityMode)
	if a.cfg.Protocol.Bootstrap {
		if err := a.bootstrap(ctx, l, deps, operator.PublicKey(), mode); err != nil {
			return nil, err
		}
	}

	p, err := protocol.New(l, protocol.Options{
		Mode:    mode,
		RateNum: a.cfg.Protocol.RateNumerator,
		RateDen: a.cfg.Protocol.RateDenominator,
		Logger:  a.root,
	})
	if err != nil {
		return nil, fmt.Errorf("app: protocol: %w", err)
	}

	return &runtime{ledger: l, protocol: p, operator: operator}, nil
}

func (a *App) bootstrap(ctx context.Context, l *ledger.Ledger, deps *Dependencies, admin solana.PublicKey, mode string) error {
	pc := a.cfg.Protocol
	fee := uint16(pc.FeeBps)
	rep, err := protocol.Bootstrap(ctx, l, protocol.Params{
		Admin:            admin,
		Mode:             mode,
		FeeBps:           &fee,
		CreatorShareBps:  uint16(pc.CreatorShareBps),
		ExecutorShareBps: uint16(pc.ExecutorShareBps),
		TreasuryShareBps: uint16(pc.TreasuryShareBps),
		Governance: governance.InitParams{
			QuorumPercentage:    uint8(a.cfg.Governance.QuorumPercentage),
			VotingPeriodSeconds: int64(a.cfg.Governance.VotingPeriod.Seconds()),
			ProposalThreshold:   a.cfg.Governance.ProposalThreshold,
		},
		DistributeTokens: pc.DistributeTokens,
		OperatorFunding:  pc.OperatorFunding,
		InitialLiquidity: pc.InitialLiquidity,
		VenueReserve:     pc.VenueReserve,
	})
	if err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}
	if len(rep.Created) == 0 {
		a.logger.InfoContext(ctx, "protocol already bootstrapped", slog.String("mode", rep.Mode))
		return nil
	}
	a.logger.InfoContext(ctx, "protocol bootstrapped",
		slog.String("mode", rep.Mode),
		slog.Any("created", rep.Created),
		slog.String("admin", admin.String()),
	)
	if deps.AuditStore != nil {
		if err := deps.AuditStore.Log(ctx, "protocol_bootstrap", map[string]any{
			"mode":    rep.Mode,
			"created": rep.Created,
			"admin":   admin.String(),
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// startHTTPServer registers the API and the WebSocket hub and runs them
// until ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	rt *runtime,
	execStats handler.ExecutorStats,
) {
	p := rt.protocol

	// With Redis the hub reads the event channels; otherwise it is fed by
	// the ledger directly. Never both, or clients see every event twice.
	hub := ws.NewHub(deps.SignalBus, a.root, ws.Config{
		Mode:          a.cfg.Mode,
		LiquidityMode: p.Mode(),
		Ledger:        rt.ledger,
		StartedAt:     time.Now().UTC(),
	})
	if deps.SignalBus == nil {
		rt.ledger.AddSink(hub)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var events handler.EventLister = handler.RecentEvents{Source: rt.ledger}
	if deps.EventStore != nil {
		events = deps.EventStore
	}
	var stream handler.StreamAppender
	if deps.SignalBus != nil {
		stream = deps.SignalBus
	}
	var archived handler.ArchiveBrowser
	if deps.BlobReader != nil {
		archived = s3blob.NewArchiveBrowser(deps.BlobReader)
	}
	stats := analytics.New(analytics.Options{
		Strategies: p.Registry,
		Executions: p.Engine,
		Proposals:  p.Governance,
		Events:     events,
		Cache:      deps.Responses,
		CacheTTL:   a.cfg.Server.CacheTTL.Duration,
		Logger:     a.root,
	})
	admin := handler.NewAdminHandler(p.Registry, a.root)
	if deps.AuditStore != nil {
		admin = admin.WithAuditLog(deps.AuditStore)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(a.cfg.Mode, rt.ledger, deps.HealthChecks, a.root),
		Strategies: handler.NewStrategyHandler(p.Registry, p.Engine, a.root),
		Liquidity:  handler.NewLiquidityHandler(p.Pool, p.Vault, a.root),
		Governance: handler.NewGovernanceHandler(p.Governance, a.root),
		Tokens:     handler.NewTokenHandler(p.Tokens, a.root),
		Events:     handler.NewEventHandler(events, a.root),
		Engine:     handler.NewEngineHandler(p.Engine, execStats, stream, a.cfg.Executor.Stream, a.root),
		Admin:      admin,
		Archive:    handler.NewArchiveHandler(archived, a.root),
		Analytics:  handler.NewAnalyticsHandler(stats, a.root),
	}, hub, deps.RateLimiter, a.root)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
