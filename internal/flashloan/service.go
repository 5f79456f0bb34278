package flashloan

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const (
	EventLiquidityDeposited ledger.EventKind = "LiquidityDeposited"
	EventFlashLoanRepaid    ledger.EventKind = "FlashLoanRepaid"
)

type LiquidityDeposited struct {
	Depositor      solana.PublicKey `json:"depositor"`
	Amount         uint64           `json:"amount"`
	TotalDeposited uint64           `json:"total_deposited"`
	Timestamp      int64            `json:"timestamp"`
}

type FlashLoanRepaid struct {
	Borrower  solana.PublicKey `json:"borrower"`
	Payer     solana.PublicKey `json:"payer"`
	Amount    uint64           `json:"amount"`
	Fee       uint64           `json:"fee"`
	Timestamp int64            `json:"timestamp"`
}

// State is the pool record together with its live token balance.
type State struct {
	Pool
	Address   solana.PublicKey `json:"address"`
	Liquidity uint64           `json:"liquidity"`
}

// Service exposes pool operations as standalone ledger transactions.
type Service struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewService creates a pool Service.
func NewService(l *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{
		ledger: l,
		logger: logger.With(slog.String("component", "flashloan")),
	}
}

// Initialize creates the pool.
func (s *Service) Initialize(ctx context.Context, admin, mint solana.PublicKey, feeBps uint16) (Pool, error) {
	var p Pool
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		p, err = InitializeTx(tx, admin, mint, feeBps)
		return err
	})
	return p, err
}

// Deposit adds liquidity owned by depositor to the pool.
func (s *Service) Deposit(ctx context.Context, depositor solana.PublicKey, amount uint64) (Pool, error) {
	var p Pool
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		p, err = DepositTx(tx, depositor, amount)
		return err
	})
	if err != nil {
		return Pool{}, err
	}
	s.logger.InfoContext(ctx, "liquidity deposited",
		slog.String("depositor", depositor.String()),
		slog.String("amount", ledger.FormatSol(amount)),
	)
	return p, nil
}

// FlashLoan lends amount to borrower, runs fn inside the same transaction,
// and collects amount plus fee from borrower. If fn fails or the borrower
// cannot pay, nothing is kept.
func (s *Service) FlashLoan(ctx context.Context, borrower solana.PublicKey, amount uint64, fn func(tx *ledger.Tx, loan Loan) error) (Loan, error) {
	var repaid Loan
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		loan, err := BorrowTx(tx, borrower, amount)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, loan); err != nil {
				return err
			}
		}
		repaid, err = RepayTx(tx, borrower, amount)
		return err
	})
	return repaid, err
}

// State returns the pool and its liquidity.
func (s *Service) State(ctx context.Context) (State, error) {
	var st State
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		p, err := LoadPool(tx)
		if err != nil {
			return err
		}
		liq, err := Liquidity(tx)
		if err != nil {
			return err
		}
		st = State{Pool: p, Address: PoolAddress(), Liquidity: liq}
		return nil
	})
	return st, err
}
