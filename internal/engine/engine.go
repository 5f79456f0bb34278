// Package engine is the Execution Orchestrator. One ExecuteStrategy call
// borrows from the deployment's liquidity source, trades, repays, splits the
// net profit between creator, executor and treasury, and records the
// outcome, all inside a single ledger transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
	"github.com/alanyoungcy/mevrebels/internal/vault"
)

// ProgramID is shared with the execution vault.
var ProgramID = vault.ProgramID

var (
	ErrNegativeProfit        = ledger.NewError(6210, "NegativeProfit", ledger.ClassResource, "execution did not cover the flash loan fee")
	ErrSlippageExceeded      = ledger.NewError(6211, "SlippageExceeded", ledger.ClassResource, "net profit below the caller's minimum")
	ErrInvalidExchangeRate   = ledger.NewError(6212, "InvalidExchangeRate", ledger.ClassValidation, "invalid exchange rate configuration")
	ErrInvalidLiquidityMode  = ledger.NewError(6213, "InvalidLiquidityMode", ledger.ClassValidation, "liquidity mode must be pool or vault")
	ErrLiquidityModeMismatch = ledger.NewError(6214, "LiquidityModeMismatch", ledger.ClassState, "ledger was bootstrapped for a different liquidity mode")
)

// InitializeTx creates the escrow and venue accounts and the stats record.
func InitializeTx(tx *ledger.Tx, mint solana.PublicKey, mode string) error {
	if _, err := SourceFor(mode); err != nil {
		return err
	}
	if _, err := token.EnsureAccount(tx, mint, EscrowAddress()); err != nil {
		return err
	}
	if _, err := token.EnsureAccount(tx, mint, VenueAddress()); err != nil {
		return err
	}
	return tx.Create(StatsAddress(), ExecutionStats{Mode: mode})
}

// LoadStats returns the ExecutionStats singleton.
func LoadStats(tx *ledger.Tx) (ExecutionStats, error) {
	return ledger.Load[ExecutionStats](tx, StatsAddress())
}

// ExecuteStrategyTx runs one execution inside tx. Any error leaves tx to be
// discarded by the caller.
func ExecuteStrategyTx(
	tx *ledger.Tx,
	source LiquiditySource,
	trader Trader,
	executor, strategyAddr solana.PublicKey,
	borrowAmount, minProfit uint64,
) (Receipt, error) {
	s, err := registry.LoadStrategy(tx, strategyAddr)
	if err != nil {
		return Receipt{}, err
	}
	if !s.IsExecutable() {
		return Receipt{}, fmt.Errorf("%w: strategy %d is %s", registry.ErrStrategyNotApproved, s.ID, s.Status)
	}
	stats, err := LoadStats(tx)
	if err != nil {
		return Receipt{}, err
	}
	if stats.Mode != source.Mode() {
		return Receipt{}, fmt.Errorf("%w: ledger %s, engine %s", ErrLiquidityModeMismatch, stats.Mode, source.Mode())
	}

	escrow := EscrowAddress()
	fee, err := source.Borrow(tx, escrow, borrowAmount)
	if err != nil {
		return Receipt{}, err
	}
	final, err := trader.Trade(tx, s, escrow, borrowAmount)
	if err != nil {
		return Receipt{}, err
	}

	gross, err := ledger.CheckedSub(final, borrowAmount)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: trade returned %d for %d", err, final, borrowAmount)
	}
	net, err := ledger.CheckedSub(gross, fee)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: gross %d, fee %d", ErrNegativeProfit, gross, fee)
	}

	if _, err := source.Repay(tx, escrow, borrowAmount); err != nil {
		return Receipt{}, err
	}
	if net < minProfit {
		return Receipt{}, fmt.Errorf("%w: net %d < min %d", ErrSlippageExceeded, net, minProfit)
	}

	dist, err := vault.LoadDistributionConfig(tx)
	if err != nil {
		return Receipt{}, err
	}
	shares, err := dist.Split(net)
	if err != nil {
		return Receipt{}, err
	}
	mint, err := escrowMint(tx)
	if err != nil {
		return Receipt{}, err
	}
	if err := payShare(tx, mint, escrow, s.Creator, shares.Creator); err != nil {
		return Receipt{}, err
	}
	if err := payShare(tx, mint, escrow, executor, shares.Executor); err != nil {
		return Receipt{}, err
	}
	if _, err := governance.DepositTreasuryTx(tx, escrow, shares.Treasury); err != nil {
		return Receipt{}, err
	}

	r := Receipt{
		Strategy:       strategyAddr,
		StrategyID:     s.ID,
		Creator:        s.Creator,
		Executor:       executor,
		Mode:           source.Mode(),
		BorrowedAmount: borrowAmount,
		FlashloanFee:   fee,
		FinalAmount:    final,
		GrossProfit:    gross,
		NetProfit:      net,
		CreatorShare:   shares.Creator,
		ExecutorShare:  shares.Executor,
		TreasuryShare:  shares.Treasury,
		Timestamp:      tx.Now(),
	}

	if err := source.RecordExecution(tx, net); err != nil {
		return Receipt{}, err
	}
	if err := stats.add(r); err != nil {
		return Receipt{}, err
	}
	tx.Put(StatsAddress(), stats)
	if err := creditTx(tx, RoleCreator, s.Creator, shares.Creator); err != nil {
		return Receipt{}, err
	}
	if err := creditTx(tx, RoleExecutor, executor, shares.Executor); err != nil {
		return Receipt{}, err
	}
	if _, err := registry.RecordExecutionTx(tx, strategyAddr, net, true); err != nil {
		return Receipt{}, err
	}
	return r, tx.Emit(ProgramID, EventStrategyExecuted, r)
}

// escrowMint is the liquidity asset, taken from the distribution treasury's
// mint so the engine needs no mint of its own.
func escrowMint(tx *ledger.Tx) (solana.PublicKey, error) {
	t, err := governance.LoadTreasury(tx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return t.Mint, nil
}

func payShare(tx *ledger.Tx, mint, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return token.Transfer(tx, mint, from, to, amount)
}

// Engine runs executions as standalone ledger transactions.
type Engine struct {
	ledger *ledger.Ledger
	source LiquiditySource
	trader Trader
	logger *slog.Logger
}

// New creates an Engine.
func New(l *ledger.Ledger, source LiquiditySource, trader Trader, logger *slog.Logger) *Engine {
	return &Engine{
		ledger: l,
		source: source,
		trader: trader,
		logger: logger.With(slog.String("component", "engine"), slog.String("mode", source.Mode())),
	}
}

// Mode returns the liquidity mode of the engine.
func (e *Engine) Mode() string { return e.source.Mode() }

// ExecuteStrategy executes strategy on behalf of executor.
func (e *Engine) ExecuteStrategy(ctx context.Context, executor, strategy solana.PublicKey, borrowAmount, minProfit uint64) (Receipt, error) {
	var r Receipt
	err := e.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		r, err = ExecuteStrategyTx(tx, e.source, e.trader, executor, strategy, borrowAmount, minProfit)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	e.logger.InfoContext(ctx, "strategy executed",
		slog.String("strategy", strategy.String()),
		slog.String("executor", executor.String()),
		slog.String("borrowed", ledger.FormatSol(r.BorrowedAmount)),
		slog.String("net_profit", ledger.FormatSol(r.NetProfit)),
	)
	return r, nil
}

// StatsView is the engine's aggregate stats with the source's liquidity.
type StatsView struct {
	ExecutionStats
	Available uint64 `json:"available_liquidity"`
}

// Stats returns the execution totals.
func (e *Engine) Stats(ctx context.Context) (StatsView, error) {
	var v StatsView
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		s, err := LoadStats(tx)
		if err != nil {
			return err
		}
		avail, err := e.source.Available(tx)
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			return err
		}
		v = StatsView{ExecutionStats: s, Available: avail}
		return nil
	})
	return v, err
}
