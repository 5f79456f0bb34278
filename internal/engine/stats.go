package engine

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const KindExecutionStats ledger.Kind = "engine.execution_stats"

const EventStrategyExecuted ledger.EventKind = "StrategyExecuted"

// ExecutionStats aggregates every execution regardless of liquidity mode.
type ExecutionStats struct {
	Mode               string `json:"mode"`
	TotalExecutions    uint64 `json:"total_executions"`
	TotalBorrowed      uint64 `json:"total_borrowed"`
	TotalFees          uint64 `json:"total_fees"`
	TotalNetProfit     uint64 `json:"total_net_profit"`
	TotalCreatorShare  uint64 `json:"total_creator_share"`
	TotalExecutorShare uint64 `json:"total_executor_share"`
	TotalTreasuryShare uint64 `json:"total_treasury_share"`
	LastExecution      int64  `json:"last_execution"`
}

func (ExecutionStats) RecordKind() ledger.Kind { return KindExecutionStats }

func (s *ExecutionStats) add(r Receipt) error {
	var err error
	fields := []struct {
		dst *uint64
		v   uint64
	}{
		{&s.TotalBorrowed, r.BorrowedAmount},
		{&s.TotalFees, r.FlashloanFee},
		{&s.TotalNetProfit, r.NetProfit},
		{&s.TotalCreatorShare, r.CreatorShare},
		{&s.TotalExecutorShare, r.ExecutorShare},
		{&s.TotalTreasuryShare, r.TreasuryShare},
	}
	for _, f := range fields {
		if *f.dst, err = ledger.CheckedAdd(*f.dst, f.v); err != nil {
			return err
		}
	}
	if s.TotalExecutions, err = ledger.CheckedInc(s.TotalExecutions); err != nil {
		return err
	}
	s.LastExecution = r.Timestamp
	return nil
}

// StatsAddress is the address of the ExecutionStats singleton.
func StatsAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("execution_stats"))
}

// EscrowAddress holds borrowed funds for the duration of an execution.
func EscrowAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("escrow"))
}

// Receipt is the StrategyExecuted payload.
type Receipt struct {
	Strategy       solana.PublicKey `json:"strategy"`
	StrategyID     uint64           `json:"strategy_id"`
	Creator        solana.PublicKey `json:"creator"`
	Executor       solana.PublicKey `json:"executor"`
	Mode           string           `json:"mode"`
	BorrowedAmount uint64           `json:"borrowed_amount"`
	FlashloanFee   uint64           `json:"flashloan_fee"`
	FinalAmount    uint64           `json:"final_amount"`
	GrossProfit    uint64           `json:"gross_profit"`
	NetProfit      uint64           `json:"net_profit"`
	CreatorShare   uint64           `json:"creator_share"`
	ExecutorShare  uint64           `json:"executor_share"`
	TreasuryShare  uint64           `json:"treasury_share"`
	Timestamp      int64            `json:"timestamp"`
}

// RegisterRecords adds the engine record kinds to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[ExecutionStats](c, KindExecutionStats)
	ledger.Register[Earnings](c, KindEarnings)
}
