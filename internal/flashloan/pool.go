// Package flashloan is the Flash-Loan Pool program: pooled WSOL liquidity
// lent out for the duration of a single ledger transaction.
//
// A loan is guarded by the pool's active flag. Borrow sets it and registers
// a pre-commit check on the transaction, so a loan that is not repaid before
// the transaction ends aborts the whole transaction and the flag can never
// outlive it.
package flashloan

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

// ProgramID owns the pool record and the pool authority.
var ProgramID = solana.MustPublicKeyFromBase58("F1agXX4p3jFV6ASqqv4ZfTNvW94WtJiinvhKH8NZ77VG")

const (
	DefaultFeeBps uint16 = 9
	MaxFeeBps     uint16 = 100

	MinBorrowAmount uint64 = 10_000_000
	MaxBorrowAmount uint64 = 1_000_000_000_000
)

const KindPool ledger.Kind = "flashloan.pool"

var (
	ErrInsufficientLiquidity = ledger.NewError(6100, "InsufficientLiquidity", ledger.ClassResource, "insufficient pool liquidity for flash loan")
	ErrFlashLoanActive       = ledger.NewError(6101, "FlashLoanActive", ledger.ClassState, "flash loan already active")
	ErrNoActiveLoan          = ledger.NewError(6102, "NoActiveLoan", ledger.ClassState, "no active flash loan to repay")
	ErrInsufficientRepayment = ledger.NewError(6103, "InsufficientRepayment", ledger.ClassResource, "repayment does not match the active loan")
	ErrBorrowAmountTooLow    = ledger.NewError(6104, "BorrowAmountTooLow", ledger.ClassValidation, "borrow amount below minimum")
	ErrBorrowAmountTooHigh   = ledger.NewError(6105, "BorrowAmountTooHigh", ledger.ClassValidation, "borrow amount above maximum")
	ErrFeeTooHigh            = ledger.NewError(6106, "FeeTooHigh", ledger.ClassValidation, "fee exceeds 100 bps")
	ErrInvalidAmount         = ledger.NewError(6107, "InvalidAmount", ledger.ClassValidation, "amount must be positive")
)

// Pool is the flash-loan pool singleton.
type Pool struct {
	Admin              solana.PublicKey `json:"admin"`
	Authority          solana.PublicKey `json:"authority"`
	Mint               solana.PublicKey `json:"mint"`
	LiquidityAccount   solana.PublicKey `json:"liquidity_account"`
	FeeBps             uint16           `json:"fee_bps"`
	TotalDeposited     uint64           `json:"total_deposited"`
	TotalLoans         uint64           `json:"total_loans"`
	TotalFeesCollected uint64           `json:"total_fees_collected"`
	ActiveLoan         bool             `json:"active_loan"`
	ActiveBorrowAmount uint64           `json:"active_borrow_amount"`
	ActiveBorrower     solana.PublicKey `json:"active_borrower"`
}

func (Pool) RecordKind() ledger.Kind { return KindPool }

// Fee returns the fee owed on amount, computed with a widened product.
func (p Pool) Fee(amount uint64) (uint64, error) {
	return ledger.Bps(amount, p.FeeBps)
}

// PoolAddress is the address of the pool record.
func PoolAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("flash_pool"))
}

// AuthorityAddress owns the pool's liquidity token account.
func AuthorityAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("flash_pool"), []byte("authority"))
}

// RegisterRecords adds the pool record kind to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[Pool](c, KindPool)
}

// LoadPool returns the pool singleton.
func LoadPool(tx *ledger.Tx) (Pool, error) {
	return ledger.Load[Pool](tx, PoolAddress())
}

// InitializeTx creates the pool and its empty liquidity account for mint.
func InitializeTx(tx *ledger.Tx, admin, mint solana.PublicKey, feeBps uint16) (Pool, error) {
	if feeBps > MaxFeeBps {
		return Pool{}, fmt.Errorf("%w: got %d", ErrFeeTooHigh, feeBps)
	}
	authority := AuthorityAddress()
	liquidity, err := token.EnsureAccount(tx, mint, authority)
	if err != nil {
		return Pool{}, err
	}
	p := Pool{
		Admin:            admin,
		Authority:        authority,
		Mint:             mint,
		LiquidityAccount: liquidity,
		FeeBps:           feeBps,
	}
	if err := tx.Create(PoolAddress(), p); err != nil {
		return Pool{}, err
	}
	return p, nil
}

// Liquidity returns the pool's current token balance.
func Liquidity(tx *ledger.Tx) (uint64, error) {
	p, err := LoadPool(tx)
	if err != nil {
		return 0, err
	}
	return token.Balance(tx, p.Mint, p.Authority)
}

// DepositTx moves amount of the pool asset from depositor into the pool.
func DepositTx(tx *ledger.Tx, depositor solana.PublicKey, amount uint64) (Pool, error) {
	if amount == 0 {
		return Pool{}, ErrInvalidAmount
	}
	p, err := LoadPool(tx)
	if err != nil {
		return Pool{}, err
	}
	if p.TotalDeposited, err = ledger.CheckedAdd(p.TotalDeposited, amount); err != nil {
		return Pool{}, err
	}
	if err := token.Transfer(tx, p.Mint, depositor, p.Authority, amount); err != nil {
		return Pool{}, err
	}
	tx.Put(PoolAddress(), p)
	return p, tx.Emit(ProgramID, EventLiquidityDeposited, LiquidityDeposited{
		Depositor:      depositor,
		Amount:         amount,
		TotalDeposited: p.TotalDeposited,
		Timestamp:      tx.Now(),
	})
}

// Loan describes an outstanding flash loan.
type Loan struct {
	Borrower solana.PublicKey `json:"borrower"`
	Amount   uint64           `json:"amount"`
	Fee      uint64           `json:"fee"`
}

// Due is the amount that must be repaid.
func (l Loan) Due() (uint64, error) {
	return ledger.CheckedAdd(l.Amount, l.Fee)
}

// BorrowTx lends amount to recipient. The loan must be repaid with RepayTx
// in the same transaction; otherwise the commit fails with LoanNotRepaid.
func BorrowTx(tx *ledger.Tx, recipient solana.PublicKey, amount uint64) (Loan, error) {
	if amount < MinBorrowAmount {
		return Loan{}, fmt.Errorf("%w: %d < %d", ErrBorrowAmountTooLow, amount, MinBorrowAmount)
	}
	if amount > MaxBorrowAmount {
		return Loan{}, fmt.Errorf("%w: %d > %d", ErrBorrowAmountTooHigh, amount, MaxBorrowAmount)
	}
	p, err := LoadPool(tx)
	if err != nil {
		return Loan{}, err
	}
	if p.ActiveLoan {
		return Loan{}, ErrFlashLoanActive
	}
	available, err := token.Balance(tx, p.Mint, p.Authority)
	if err != nil {
		return Loan{}, err
	}
	if available < amount {
		return Loan{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientLiquidity, available, amount)
	}
	fee, err := p.Fee(amount)
	if err != nil {
		return Loan{}, err
	}

	p.ActiveLoan = true
	p.ActiveBorrowAmount = amount
	p.ActiveBorrower = recipient
	if err := token.Transfer(tx, p.Mint, p.Authority, recipient, amount); err != nil {
		return Loan{}, err
	}
	tx.Put(PoolAddress(), p)
	tx.BeforeCommit(func() error {
		cur, err := LoadPool(tx)
		if err != nil {
			return err
		}
		if cur.ActiveLoan {
			return fmt.Errorf("%w: %d outstanding", ledger.ErrLoanNotRepaid, cur.ActiveBorrowAmount)
		}
		return nil
	})
	return Loan{Borrower: recipient, Amount: amount, Fee: fee}, nil
}

// RepayTx closes the active loan. payer transfers amountBorrowed plus the
// fee back into the pool.
func RepayTx(tx *ledger.Tx, payer solana.PublicKey, amountBorrowed uint64) (Loan, error) {
	p, err := LoadPool(tx)
	if err != nil {
		return Loan{}, err
	}
	if !p.ActiveLoan {
		return Loan{}, ErrNoActiveLoan
	}
	if amountBorrowed != p.ActiveBorrowAmount {
		return Loan{}, fmt.Errorf("%w: repaying %d of %d", ErrInsufficientRepayment, amountBorrowed, p.ActiveBorrowAmount)
	}
	loan := Loan{Borrower: p.ActiveBorrower, Amount: amountBorrowed}
	if loan.Fee, err = p.Fee(amountBorrowed); err != nil {
		return Loan{}, err
	}
	due, err := loan.Due()
	if err != nil {
		return Loan{}, err
	}
	if err := token.Transfer(tx, p.Mint, payer, p.Authority, due); err != nil {
		return Loan{}, err
	}

	p.ActiveLoan = false
	p.ActiveBorrowAmount = 0
	p.ActiveBorrower = solana.PublicKey{}
	if p.TotalLoans, err = ledger.CheckedInc(p.TotalLoans); err != nil {
		return Loan{}, err
	}
	if p.TotalFeesCollected, err = ledger.CheckedAdd(p.TotalFeesCollected, loan.Fee); err != nil {
		return Loan{}, err
	}
	tx.Put(PoolAddress(), p)
	return loan, tx.Emit(ProgramID, EventFlashLoanRepaid, FlashLoanRepaid{
		Borrower:  loan.Borrower,
		Payer:     payer,
		Amount:    loan.Amount,
		Fee:       loan.Fee,
		Timestamp: tx.Now(),
	})
}
