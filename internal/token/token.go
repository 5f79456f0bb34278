// Package token keeps fungible token balances on the ledger: the wrapped-SOL
// liquidity asset and the REBEL governance token. Accounts are addressed per
// (mint, owner) pair.
package token

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

var (
	// ProgramID owns every mint and token account.
	ProgramID = solana.TokenProgramID

	// NativeMint is wrapped SOL, the liquidity asset of pool and vault.
	NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

const (
	KindMint    ledger.Kind = "token.mint"
	KindAccount ledger.Kind = "token.account"
)

var (
	ErrInsufficientFunds     = ledger.NewError(6400, "InsufficientFunds", ledger.ClassResource, "token account balance too low")
	ErrMintAuthorityMismatch = ledger.NewError(6401, "MintAuthorityMismatch", ledger.ClassAuthorization, "signer is not the mint authority")
	ErrSameAccount           = ledger.NewError(6402, "SameAccount", ledger.ClassValidation, "source and destination are the same account")
)

// Mint describes a token.
type Mint struct {
	Address   solana.PublicKey `json:"address"`
	Authority solana.PublicKey `json:"authority"`
	Supply    uint64           `json:"supply"`
	Decimals  uint8            `json:"decimals"`
}

func (Mint) RecordKind() ledger.Kind { return KindMint }

// Account is one owner's balance of one mint.
type Account struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

func (Account) RecordKind() ledger.Kind { return KindAccount }

// RegisterRecords adds the token record kinds to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[Mint](c, KindMint)
	ledger.Register[Account](c, KindAccount)
}

// AccountAddress derives the token account of owner for mint.
func AccountAddress(mint, owner solana.PublicKey) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("token_account"), mint.Bytes(), owner.Bytes())
}

// mintRecordAddress is where the Mint record for a mint address lives.
func mintRecordAddress(mint solana.PublicKey) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("mint"), mint.Bytes())
}

// CreateMint registers a new mint with zero supply.
func CreateMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error {
	return tx.Create(mintRecordAddress(mint), Mint{
		Address:   mint,
		Authority: authority,
		Decimals:  decimals,
	})
}

// LoadMint returns the mint record.
func LoadMint(tx *ledger.Tx, mint solana.PublicKey) (Mint, error) {
	return ledger.Load[Mint](tx, mintRecordAddress(mint))
}

// MintExists reports whether mint has been created.
func MintExists(tx *ledger.Tx, mint solana.PublicKey) bool {
	return tx.Exists(mintRecordAddress(mint))
}

// EnsureAccount creates an empty token account if none exists and returns
// its address.
func EnsureAccount(tx *ledger.Tx, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	if _, err := LoadMint(tx, mint); err != nil {
		return solana.PublicKey{}, err
	}
	addr := AccountAddress(mint, owner)
	if !tx.Exists(addr) {
		tx.Put(addr, Account{Mint: mint, Owner: owner})
	}
	return addr, nil
}

// Balance returns owner's balance of mint, zero when no account exists.
func Balance(tx *ledger.Tx, mint, owner solana.PublicKey) (uint64, error) {
	addr := AccountAddress(mint, owner)
	if !tx.Exists(addr) {
		return 0, nil
	}
	acct, err := ledger.Load[Account](tx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// MintTo creates amount new tokens in owner's account. authority must be the
// mint authority.
func MintTo(tx *ledger.Tx, mint, authority, owner solana.PublicKey, amount uint64) error {
	m, err := LoadMint(tx, mint)
	if err != nil {
		return err
	}
	if !m.Authority.Equals(authority) {
		return ErrMintAuthorityMismatch
	}
	if m.Supply, err = ledger.CheckedAdd(m.Supply, amount); err != nil {
		return err
	}
	addr, err := EnsureAccount(tx, mint, owner)
	if err != nil {
		return err
	}
	acct, err := ledger.Load[Account](tx, addr)
	if err != nil {
		return err
	}
	if acct.Amount, err = ledger.CheckedAdd(acct.Amount, amount); err != nil {
		return err
	}
	tx.Put(mintRecordAddress(mint), m)
	tx.Put(addr, acct)
	return nil
}

// Transfer moves amount of mint from one owner to another. The caller is
// responsible for having authorized the debit of from.
func Transfer(tx *ledger.Tx, mint, from, to solana.PublicKey, amount uint64) error {
	if from.Equals(to) {
		return ErrSameAccount
	}
	srcAddr := AccountAddress(mint, from)
	src, err := ledger.Load[Account](tx, srcAddr)
	if err != nil {
		return fmt.Errorf("%w: no %s account for %s", ErrInsufficientFunds, mint, from)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	dstAddr, err := EnsureAccount(tx, mint, to)
	if err != nil {
		return err
	}
	dst, err := ledger.Load[Account](tx, dstAddr)
	if err != nil {
		return err
	}
	src.Amount -= amount
	if dst.Amount, err = ledger.CheckedAdd(dst.Amount, amount); err != nil {
		return err
	}
	tx.Put(srcAddr, src)
	tx.Put(dstAddr, dst)
	return nil
}

// Service exposes token operations as standalone ledger transactions.
type Service struct {
	ledger *ledger.Ledger
}

// NewService creates a token Service.
func NewService(l *ledger.Ledger) *Service {
	return &Service{ledger: l}
}

// Balance returns owner's balance of mint.
func (s *Service) Balance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	var bal uint64
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		bal, err = Balance(tx, mint, owner)
		return err
	})
	return bal, err
}

// Transfer moves tokens owned by the caller.
func (s *Service) Transfer(ctx context.Context, mint, caller, to solana.PublicKey, amount uint64) error {
	return s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		return Transfer(tx, mint, caller, to, amount)
	})
}

// MintTo mints new tokens; caller must be the mint authority.
func (s *Service) MintTo(ctx context.Context, mint, caller, owner solana.PublicKey, amount uint64) error {
	return s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		return MintTo(tx, mint, caller, owner, amount)
	})
}
