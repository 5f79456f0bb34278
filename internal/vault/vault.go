// Package vault holds the Execution Vault, the internally accounted
// liquidity source, and the profit distribution config shared by every
// execution.
package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

// ProgramID is the execution engine program. It owns the vault, the profit
// distribution config, and the execution escrow.
var ProgramID = solana.MustPublicKeyFromBase58("ExecRebe1sEngineMocKF1ash1oanArbitrageV1111")

const (
	DefaultFeeBps uint16 = 9
	MaxFeeBps     uint16 = 100
)

const (
	KindVault              ledger.Kind = "vault.execution_vault"
	KindDistributionConfig ledger.Kind = "vault.profit_config"
)

var (
	ErrInsufficientVaultLiquidity = ledger.NewError(6200, "InsufficientVaultLiquidity", ledger.ClassResource, "insufficient vault liquidity")
	ErrInsufficientRepayment      = ledger.NewError(6201, "InsufficientRepayment", ledger.ClassResource, "repayment does not match the borrowed amount")
	ErrInvalidProfitDistribution  = ledger.NewError(6202, "InvalidProfitDistribution", ledger.ClassValidation, "profit shares must sum to 10000 bps")
	ErrVaultLoanActive            = ledger.NewError(6203, "VaultLoanActive", ledger.ClassState, "vault already has an outstanding borrow")
	ErrNoActiveVaultLoan          = ledger.NewError(6204, "NoActiveVaultLoan", ledger.ClassState, "vault has no outstanding borrow")
	ErrInvalidFee                 = ledger.NewError(6205, "InvalidFee", ledger.ClassValidation, "fee exceeds 100 bps")
	ErrInvalidAmount              = ledger.NewError(6206, "InvalidAmount", ledger.ClassValidation, "amount must be positive")
)

// Vault is the execution vault singleton. AvailableLiquidity mirrors the
// balance of LiquidityAccount; BorrowedAmount is non-zero only inside an
// execution transaction.
type Vault struct {
	Admin                  solana.PublicKey `json:"admin"`
	Authority              solana.PublicKey `json:"authority"`
	Mint                   solana.PublicKey `json:"mint"`
	LiquidityAccount       solana.PublicKey `json:"liquidity_account"`
	FeeBps                 uint16           `json:"fee_bps"`
	AvailableLiquidity     uint64           `json:"available_liquidity"`
	BorrowedAmount         uint64           `json:"borrowed_amount"`
	TotalFeesCollected     uint64           `json:"total_fees_collected"`
	TotalExecutions        uint64           `json:"total_executions"`
	TotalProfitDistributed uint64           `json:"total_profit_distributed"`
}

func (Vault) RecordKind() ledger.Kind { return KindVault }

// Fee returns the fee charged on a borrow of amount.
func (v Vault) Fee(amount uint64) (uint64, error) {
	return ledger.Bps(amount, v.FeeBps)
}

// VaultAddress is the address of the vault record.
func VaultAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("execution_vault"))
}

// AuthorityAddress owns the vault's liquidity token account.
func AuthorityAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("execution_vault"), []byte("authority"))
}

// RegisterRecords adds the vault record kinds to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[Vault](c, KindVault)
	ledger.Register[DistributionConfig](c, KindDistributionConfig)
}

// LoadVault returns the vault singleton.
func LoadVault(tx *ledger.Tx) (Vault, error) {
	return ledger.Load[Vault](tx, VaultAddress())
}

// InitializeTx creates the empty vault for mint.
func InitializeTx(tx *ledger.Tx, admin, mint solana.PublicKey, feeBps uint16) (Vault, error) {
	if feeBps > MaxFeeBps {
		return Vault{}, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}
	authority := AuthorityAddress()
	liquidity, err := token.EnsureAccount(tx, mint, authority)
	if err != nil {
		return Vault{}, err
	}
	v := Vault{
		Admin:            admin,
		Authority:        authority,
		Mint:             mint,
		LiquidityAccount: liquidity,
		FeeBps:           feeBps,
	}
	if err := tx.Create(VaultAddress(), v); err != nil {
		return Vault{}, err
	}
	return v, nil
}

// FundTx moves amount from funder into the vault.
func FundTx(tx *ledger.Tx, funder solana.PublicKey, amount uint64) (Vault, error) {
	if amount == 0 {
		return Vault{}, ErrInvalidAmount
	}
	v, err := LoadVault(tx)
	if err != nil {
		return Vault{}, err
	}
	if v.AvailableLiquidity, err = ledger.CheckedAdd(v.AvailableLiquidity, amount); err != nil {
		return Vault{}, err
	}
	if err := token.Transfer(tx, v.Mint, funder, v.Authority, amount); err != nil {
		return Vault{}, err
	}
	tx.Put(VaultAddress(), v)
	return v, tx.Emit(ProgramID, EventVaultFunded, VaultFunded{
		Funder:             funder,
		Amount:             amount,
		AvailableLiquidity: v.AvailableLiquidity,
		Timestamp:          tx.Now(),
	})
}

// Borrow is an outstanding vault borrow.
type Borrow struct {
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
}

// Due is the amount that must be repaid.
func (b Borrow) Due() (uint64, error) {
	return ledger.CheckedAdd(b.Amount, b.Fee)
}

// BorrowTx lends amount to recipient. It must be repaid with RepayTx in the
// same transaction or the commit fails with LoanNotRepaid.
func BorrowTx(tx *ledger.Tx, recipient solana.PublicKey, amount uint64) (Borrow, error) {
	if amount == 0 {
		return Borrow{}, ErrInvalidAmount
	}
	v, err := LoadVault(tx)
	if err != nil {
		return Borrow{}, err
	}
	if v.BorrowedAmount != 0 {
		return Borrow{}, ErrVaultLoanActive
	}
	if v.AvailableLiquidity < amount {
		return Borrow{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientVaultLiquidity, v.AvailableLiquidity, amount)
	}
	b := Borrow{Amount: amount}
	if b.Fee, err = v.Fee(amount); err != nil {
		return Borrow{}, err
	}
	v.AvailableLiquidity -= amount
	v.BorrowedAmount = amount
	if err := token.Transfer(tx, v.Mint, v.Authority, recipient, amount); err != nil {
		return Borrow{}, err
	}
	tx.Put(VaultAddress(), v)
	tx.BeforeCommit(func() error {
		cur, err := LoadVault(tx)
		if err != nil {
			return err
		}
		if cur.BorrowedAmount != 0 {
			return fmt.Errorf("%w: vault has %d outstanding", ledger.ErrLoanNotRepaid, cur.BorrowedAmount)
		}
		return nil
	})
	return b, nil
}

// RepayTx returns amountBorrowed plus the fee from payer to the vault.
func RepayTx(tx *ledger.Tx, payer solana.PublicKey, amountBorrowed uint64) (Borrow, error) {
	v, err := LoadVault(tx)
	if err != nil {
		return Borrow{}, err
	}
	if v.BorrowedAmount == 0 {
		return Borrow{}, ErrNoActiveVaultLoan
	}
	if amountBorrowed != v.BorrowedAmount {
		return Borrow{}, fmt.Errorf("%w: repaying %d of %d", ErrInsufficientRepayment, amountBorrowed, v.BorrowedAmount)
	}
	b := Borrow{Amount: amountBorrowed}
	if b.Fee, err = v.Fee(amountBorrowed); err != nil {
		return Borrow{}, err
	}
	due, err := b.Due()
	if err != nil {
		return Borrow{}, err
	}
	if err := token.Transfer(tx, v.Mint, payer, v.Authority, due); err != nil {
		return Borrow{}, err
	}
	v.BorrowedAmount = 0
	if v.AvailableLiquidity, err = ledger.CheckedAdd(v.AvailableLiquidity, due); err != nil {
		return Borrow{}, err
	}
	if v.TotalFeesCollected, err = ledger.CheckedAdd(v.TotalFeesCollected, b.Fee); err != nil {
		return Borrow{}, err
	}
	tx.Put(VaultAddress(), v)
	return b, nil
}

// RecordExecutionTx adds one execution and its distributed profit to the
// vault totals.
func RecordExecutionTx(tx *ledger.Tx, netProfit uint64) (Vault, error) {
	v, err := LoadVault(tx)
	if err != nil {
		return Vault{}, err
	}
	if v.TotalExecutions, err = ledger.CheckedInc(v.TotalExecutions); err != nil {
		return Vault{}, err
	}
	if v.TotalProfitDistributed, err = ledger.CheckedAdd(v.TotalProfitDistributed, netProfit); err != nil {
		return Vault{}, err
	}
	tx.Put(VaultAddress(), v)
	return v, nil
}
