package engine

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/flashloan"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/vault"
)

// Liquidity modes. A deployment runs exactly one.
const (
	ModePool  = "pool"
	ModeVault = "vault"
)

// LiquiditySource lends the borrow amount of an execution and takes it back
// with its fee inside the same transaction.
type LiquiditySource interface {
	Mode() string
	Borrow(tx *ledger.Tx, recipient solana.PublicKey, amount uint64) (fee uint64, err error)
	Repay(tx *ledger.Tx, payer solana.PublicKey, amount uint64) (fee uint64, err error)
	RecordExecution(tx *ledger.Tx, netProfit uint64) error
	Available(tx *ledger.Tx) (uint64, error)
}

// SourceFor returns the liquidity source for a configured mode.
func SourceFor(mode string) (LiquiditySource, error) {
	switch strings.ToLower(mode) {
	case ModePool:
		return PoolSource{}, nil
	case ModeVault:
		return VaultSource{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidLiquidityMode, mode)
}

// PoolSource borrows from the flash-loan pool.
type PoolSource struct{}

func (PoolSource) Mode() string { return ModePool }

func (PoolSource) Borrow(tx *ledger.Tx, recipient solana.PublicKey, amount uint64) (uint64, error) {
	loan, err := flashloan.BorrowTx(tx, recipient, amount)
	return loan.Fee, err
}

func (PoolSource) Repay(tx *ledger.Tx, payer solana.PublicKey, amount uint64) (uint64, error) {
	loan, err := flashloan.RepayTx(tx, payer, amount)
	return loan.Fee, err
}

// RecordExecution is a no-op: the pool accounts loans and fees on repay.
func (PoolSource) RecordExecution(*ledger.Tx, uint64) error { return nil }

func (PoolSource) Available(tx *ledger.Tx) (uint64, error) { return flashloan.Liquidity(tx) }

// VaultSource borrows from the execution vault.
type VaultSource struct{}

func (VaultSource) Mode() string { return ModeVault }

func (VaultSource) Borrow(tx *ledger.Tx, recipient solana.PublicKey, amount uint64) (uint64, error) {
	b, err := vault.BorrowTx(tx, recipient, amount)
	return b.Fee, err
}

func (VaultSource) Repay(tx *ledger.Tx, payer solana.PublicKey, amount uint64) (uint64, error) {
	b, err := vault.RepayTx(tx, payer, amount)
	return b.Fee, err
}

func (VaultSource) RecordExecution(tx *ledger.Tx, netProfit uint64) error {
	_, err := vault.RecordExecutionTx(tx, netProfit)
	return err
}

func (VaultSource) Available(tx *ledger.Tx) (uint64, error) {
	v, err := vault.LoadVault(tx)
	if err != nil {
		return 0, err
	}
	return v.AvailableLiquidity, nil
}
