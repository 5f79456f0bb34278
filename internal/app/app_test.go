package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mevrebels/internal/config"
	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// offlineConfig disables every network backend.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Postgres.Enabled = false
	cfg.Redis.Enabled = false
	cfg.S3.Enabled = false
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Operator.PrivateKey = key.String()
	cfg.Protocol.OperatorFunding = 100 * ledger.LamportsPerSol
	cfg.Protocol.InitialLiquidity = 10 * ledger.LamportsPerSol
	return &cfg
}

func TestWireWithoutBackends(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), offlineConfig(t), discard())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if deps.Journal != nil || deps.SignalBus != nil || deps.LockManager != nil || deps.Archiver != nil {
		t.Errorf("disabled backends were wired: %+v", deps)
	}
	if len(deps.HealthChecks) != 0 {
		t.Errorf("health checks = %v", deps.HealthChecks)
	}
	if deps.Notifier == nil || deps.Notifier.Enabled() {
		t.Error("notifier should exist without senders")
	}
}

func TestArchiveModeRequiresBackends(t *testing.T) {
	a := New(offlineConfig(t), discard())
	if err := a.ArchiveMode(context.Background(), &Dependencies{}); err == nil {
		t.Fatal("archive mode ran without an archiver")
	}
}

func TestOpenRuntimeBootstraps(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)
	a := New(cfg, discard())
	deps, cleanup, err := Wire(ctx, cfg, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	rt, err := a.openRuntime(ctx, new(errgroup.Group), deps, false)
	if err != nil {
		t.Fatal(err)
	}
	if rt.protocol.Mode() != engine.ModePool {
		t.Errorf("mode = %s", rt.protocol.Mode())
	}
	admin, err := rt.protocol.Registry.AdminConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !admin.Admin.Equals(rt.operator.PublicKey()) {
		t.Errorf("admin = %s, want operator %s", admin.Admin, rt.operator.PublicKey())
	}
	if rt.ledger.Seq() == 0 {
		t.Error("bootstrap emitted no events")
	}

	t.Run("rerun is a no-op", func(t *testing.T) {
		seq := rt.ledger.Seq()
		if err := a.bootstrap(ctx, rt.ledger, deps, rt.operator.PublicKey(), engine.ModePool); err != nil {
			t.Fatal(err)
		}
		if rt.ledger.Seq() != seq {
			t.Errorf("seq moved from %d to %d", seq, rt.ledger.Seq())
		}
	})

	t.Run("mode mismatch", func(t *testing.T) {
		err := a.bootstrap(ctx, rt.ledger, deps, rt.operator.PublicKey(), "vault")
		if !errors.Is(err, engine.ErrLiquidityModeMismatch) {
			t.Fatalf("err = %v, want liquidity mode mismatch", err)
		}
	})
}

func TestOpenRuntimeRejectsMissingKey(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Operator.PrivateKey = ""
	a := New(cfg, discard())
	if _, err := a.openRuntime(context.Background(), new(errgroup.Group), &Dependencies{}, false); err == nil {
		t.Fatal("runtime opened without an operator key")
	}
}

type fakeLocks struct{ err error }

func (f fakeLocks) Acquire(context.Context, string, time.Duration) (domain.Lock, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeLock{}, nil
}

// fakeLock is lost on its second refresh.
type fakeLock struct{ extends int }

func (l *fakeLock) Extend(context.Context, time.Duration) error {
	l.extends++
	if l.extends > 1 {
		return domain.ErrLockLost
	}
	return nil
}

func (l *fakeLock) Unlock() {}

func TestWriterLock(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)
	cfg.Redis.WriterLockTTL.Duration = 30 * time.Millisecond
	a := New(cfg, discard())

	if _, err := a.acquireWriterLock(ctx, &Dependencies{LockManager: fakeLocks{err: domain.ErrLockHeld}}); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want lock held", err)
	}

	lock, err := a.acquireWriterLock(ctx, &Dependencies{LockManager: fakeLocks{}})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- a.keepWriterLock(ctx, lock) }()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrLockLost) {
			t.Fatalf("err = %v, want lock lost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("keepalive did not notice the lost lock")
	}

	lock, err = a.acquireWriterLock(ctx, &Dependencies{})
	if err != nil || lock != nil {
		t.Fatalf("without redis: lock %v, err %v", lock, err)
	}
}
