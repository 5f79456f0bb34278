// Package executor runs strategy execution requests read from the Redis
// request stream, signing each one with the operator identity.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// StrategyRunner executes one strategy inside a ledger transaction.
type StrategyRunner interface {
	ExecuteStrategy(ctx context.Context, executor, strategy solana.PublicKey, borrowAmount, minProfit uint64) (engine.Receipt, error)
}

// Alerter delivers operator alerts. notify.Notifier satisfies it.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Outcome is the result of handling one stream message.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeExpired   Outcome = "expired"
	OutcomeMalformed Outcome = "malformed"
)

// Options configures an Executor.
type Options struct {
	Stream       string
	BatchSize    int
	PollInterval time.Duration
	DedupTTL     time.Duration
	// StartID is the stream ID to read after. Empty starts at the current
	// time so that requests queued while the node was down are not replayed.
	StartID string
}

// Executor reads ExecRequests from a stream, drops duplicates and expired
// requests, and runs the rest through the engine. Failed executions are not
// retried: the ledger already rolled them back and the requester decides.
type Executor struct {
	bus      domain.SignalBus
	runner   StrategyRunner
	operator solana.PublicKey
	alerter  Alerter
	dedup    *Dedup
	logger   *slog.Logger

	stream          string
	batch           int
	pollInterval    time.Duration
	cleanupInterval time.Duration
	lastID          atomic.Value // string
	now             func() time.Time

	executed  atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	lastError atomic.Value // string
}

// NewExecutor creates an Executor that runs requests as operator.
func NewExecutor(bus domain.SignalBus, runner StrategyRunner, operator solana.PublicKey, opts Options, logger *slog.Logger) *Executor {
	if opts.Stream == "" {
		opts.Stream = "rebel:exec_requests"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	lastID := opts.StartID
	if lastID == "" {
		lastID = fmt.Sprintf("%d-0", time.Now().UnixMilli())
	}
	e := &Executor{
		bus:             bus,
		runner:          runner,
		operator:        operator,
		dedup:           NewDedup(opts.DedupTTL),
		logger:          logger.With(slog.String("component", "executor")),
		stream:          opts.Stream,
		batch:           opts.BatchSize,
		pollInterval:    opts.PollInterval,
		cleanupInterval: 30 * time.Second,
		now:             time.Now,
	}
	e.lastID.Store(lastID)
	return e
}

// SetAlerter enables alerts for integrity violations and infrastructure
// failures.
func (e *Executor) SetAlerter(a Alerter) {
	e.alerter = a
}

// Run consumes the stream until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started",
		slog.String("stream", e.stream),
		slog.String("operator", e.operator.String()),
		slog.String("after", e.LastID()),
	)
	defer e.logger.Info("executor stopped")

	lastCleanup := e.now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := e.bus.StreamRead(ctx, e.stream, e.LastID(), e.batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("stream read failed", slog.String("error", err.Error()))
			if !e.pause(ctx) {
				return nil
			}
			continue
		}

		for _, msg := range msgs {
			e.Handle(ctx, msg)
			e.lastID.Store(msg.ID)
		}

		if e.now().Sub(lastCleanup) >= e.cleanupInterval {
			e.dedup.Cleanup()
			lastCleanup = e.now()
		}

		if len(msgs) == 0 && !e.pause(ctx) {
			return nil
		}
	}
}

// LastID returns the ID of the last stream entry handled.
func (e *Executor) LastID() string {
	id, _ := e.lastID.Load().(string)
	return id
}

func (e *Executor) pause(ctx context.Context) bool {
	t := time.NewTimer(e.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Handle processes a single stream message and reports what happened to it.
func (e *Executor) Handle(ctx context.Context, msg domain.StreamMessage) Outcome {
	var req domain.ExecRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		e.skipped.Add(1)
		e.logger.Warn("malformed execution request",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return OutcomeMalformed
	}
	if req.ID == "" {
		req.ID = msg.ID
	}

	log := e.logger.With(
		slog.String("request_id", req.ID),
		slog.String("strategy", req.Strategy.String()),
		slog.String("borrow", ledger.FormatSol(req.BorrowAmount)),
	)

	if e.dedup.IsDuplicate(req.ID) {
		e.skipped.Add(1)
		log.Debug("request deduplicated, skipping")
		return OutcomeDuplicate
	}

	if req.Expired(e.now().UTC()) {
		e.skipped.Add(1)
		log.Warn("request expired, skipping", slog.Time("expires_at", req.ExpiresAt))
		return OutcomeExpired
	}

	receipt, err := e.runner.ExecuteStrategy(ctx, e.operator, req.Strategy, req.BorrowAmount, req.MinProfit)
	if err != nil {
		return e.handleFailure(ctx, log, req, err)
	}

	e.executed.Add(1)
	log.Info("strategy executed",
		slog.String("net_profit", ledger.FormatSol(receipt.NetProfit)),
		slog.String("executor_share", ledger.FormatSol(receipt.ExecutorShare)),
		slog.String("treasury_share", ledger.FormatSol(receipt.TreasuryShare)),
	)
	return OutcomeExecuted
}

func (e *Executor) handleFailure(ctx context.Context, log *slog.Logger, req domain.ExecRequest, err error) Outcome {
	e.lastError.Store(err.Error())

	pe, ok := ledger.AsError(err)
	if !ok {
		e.failed.Add(1)
		log.Error("execution failed", slog.String("error", err.Error()))
		e.alert(ctx, "Execution failed", fmt.Sprintf("request %s for strategy %s: %v", req.ID, req.Strategy, err))
		return OutcomeFailed
	}

	log = log.With(
		slog.String("code", pe.Name),
		slog.String("class", pe.Class.String()),
	)
	if pe.Class == ledger.ClassArithmetic {
		e.failed.Add(1)
		log.Error("execution integrity violation", slog.String("error", err.Error()))
		e.alert(ctx, "Execution integrity violation", fmt.Sprintf("request %s for strategy %s: %s", req.ID, req.Strategy, pe.Error()))
		return OutcomeFailed
	}

	e.rejected.Add(1)
	if pe.Class == ledger.ClassResource {
		log.Warn("execution economically rejected", slog.String("min_profit", ledger.FormatSol(req.MinProfit)))
	} else {
		log.Warn("execution refused", slog.String("error", pe.Msg))
	}
	return OutcomeRejected
}

func (e *Executor) alert(ctx context.Context, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.NotifyAll(ctx, title, message); err != nil {
		e.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
	}
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Stream    string `json:"stream"`
	LastID    string `json:"last_id"`
	Executed  int64  `json:"executed"`
	Rejected  int64  `json:"rejected"`
	Failed    int64  `json:"failed"`
	Skipped   int64  `json:"skipped"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns the executor counters.
func (e *Executor) Stats() Stats {
	s := Stats{
		Stream:   e.stream,
		LastID:   e.LastID(),
		Executed: e.executed.Load(),
		Rejected: e.rejected.Load(),
		Failed:   e.failed.Load(),
		Skipped:  e.skipped.Load(),
	}
	if v, ok := e.lastError.Load().(string); ok {
		s.LastError = v
	}
	return s
}
