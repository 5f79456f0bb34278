package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

const sol = ledger.LamportsPerSol

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk.PublicKey()
}

func TestDistributionConfigValidate(t *testing.T) {
	tests := []struct {
		name                        string
		creator, executor, treasury uint16
		wantErr                     bool
	}{
		{"default", 4000, 4000, 2000, false},
		{"all to treasury", 0, 0, 10000, false},
		{"short by one", 4000, 4000, 1999, true},
		{"over by one", 4000, 4001, 2000, true},
		{"wraps uint16", 65535, 65535, 10000, true},
		{"zero", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DistributionConfig{
				CreatorShareBps:  tt.creator,
				ExecutorShareBps: tt.executor,
				TreasuryShareBps: tt.treasury,
			}
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProfitDistribution) {
					t.Errorf("err = %v, want ErrInvalidProfitDistribution", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	def := DistributionConfig{
		CreatorShareBps:  DefaultCreatorShareBps,
		ExecutorShareBps: DefaultExecutorShareBps,
		TreasuryShareBps: DefaultTreasuryShareBps,
	}
	odd := DistributionConfig{CreatorShareBps: 3333, ExecutorShareBps: 3333, TreasuryShareBps: 3334}

	tests := []struct {
		name string
		cfg  DistributionConfig
		net  uint64
		want Shares
	}{
		{"remainder to treasury", def, 791, Shares{316, 316, 159}},
		{"ten sol scenario", def, 791_000_000, Shares{316_400_000, 316_400_000, 158_200_000}},
		{"zero", def, 0, Shares{0, 0, 0}},
		{"one unit", def, 1, Shares{0, 0, 1}},
		{"thirds", odd, 10, Shares{3, 3, 4}},
		{"max", def, math.MaxUint64, Shares{7378697629483820646, 7378697629483820646, 3689348814741910323}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Split(tt.net)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Split(%d) = %+v, want %+v", tt.net, got, tt.want)
			}
			total, err := got.Total()
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.net {
				t.Errorf("shares sum to %d, want %d", total, tt.net)
			}
		})
	}
}

func TestSplitConservesValue(t *testing.T) {
	cfg := DistributionConfig{CreatorShareBps: 4000, ExecutorShareBps: 4000, TreasuryShareBps: 2000}
	for net := uint64(0); net < 20_000; net += 7 {
		s, err := cfg.Split(net)
		if err != nil {
			t.Fatal(err)
		}
		if total, _ := s.Total(); total != net {
			t.Fatalf("net %d split into %+v", net, s)
		}
	}
}

type fixture struct {
	ledger *ledger.Ledger
	svc    *Service
	admin  solana.PublicKey
	user   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(ledger.Options{})
	f := &fixture{
		ledger: l,
		svc:    NewService(l, slog.New(slog.NewTextHandler(io.Discard, nil))),
		admin:  newKey(t),
		user:   newKey(t),
	}
	err := l.Update(ctx, func(tx *ledger.Tx) error {
		if err := token.CreateMint(tx, token.NativeMint, f.admin, 9); err != nil {
			return err
		}
		if err := token.MintTo(tx, token.NativeMint, f.admin, f.admin, 100*sol); err != nil {
			return err
		}
		if err := token.MintTo(tx, token.NativeMint, f.admin, f.user, sol); err != nil {
			return err
		}
		if _, err := InitializeTx(tx, f.admin, token.NativeMint, DefaultFeeBps); err != nil {
			return err
		}
		return InitializeDistributionTx(tx, DistributionConfig{
			Treasury:         newKey(t),
			CreatorShareBps:  DefaultCreatorShareBps,
			ExecutorShareBps: DefaultExecutorShareBps,
			TreasuryShareBps: DefaultTreasuryShareBps,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Fund(ctx, f.admin, 100*sol); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) vault(t *testing.T) Vault {
	t.Helper()
	st, err := f.svc.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st.Vault
}

func TestBorrowRepayConservation(t *testing.T) {
	f := newFixture(t)
	before := f.vault(t)

	err := f.ledger.Update(context.Background(), func(tx *ledger.Tx) error {
		b, err := BorrowTx(tx, f.user, 10*sol)
		if err != nil {
			return err
		}
		mid, _ := LoadVault(tx)
		if mid.AvailableLiquidity+mid.BorrowedAmount != before.AvailableLiquidity {
			t.Errorf("available+borrowed = %d, want %d", mid.AvailableLiquidity+mid.BorrowedAmount, before.AvailableLiquidity)
		}
		if b.Fee != 9_000_000 {
			t.Errorf("fee = %d", b.Fee)
		}
		_, err = RepayTx(tx, f.user, 10*sol)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	after := f.vault(t)
	if after.BorrowedAmount != 0 {
		t.Errorf("borrowed = %d", after.BorrowedAmount)
	}
	if after.AvailableLiquidity != before.AvailableLiquidity+9_000_000 {
		t.Errorf("available = %d", after.AvailableLiquidity)
	}
	if after.TotalFeesCollected != 9_000_000 {
		t.Errorf("fees = %d", after.TotalFeesCollected)
	}
	var held uint64
	_ = f.ledger.View(context.Background(), func(tx *ledger.Tx) error {
		held, _ = token.Balance(tx, token.NativeMint, AuthorityAddress())
		return nil
	})
	if held != after.AvailableLiquidity {
		t.Errorf("token balance %d != available %d", held, after.AvailableLiquidity)
	}
}

func TestVaultBorrowGuards(t *testing.T) {
	tests := []struct {
		name    string
		run     func(tx *ledger.Tx, user solana.PublicKey) error
		wantErr error
	}{
		{"insufficient liquidity", func(tx *ledger.Tx, user solana.PublicKey) error {
			_, err := BorrowTx(tx, user, 101*sol)
			return err
		}, ErrInsufficientVaultLiquidity},
		{"second borrow", func(tx *ledger.Tx, user solana.PublicKey) error {
			if _, err := BorrowTx(tx, user, sol); err != nil {
				return err
			}
			_, err := BorrowTx(tx, user, sol)
			return err
		}, ErrVaultLoanActive},
		{"mismatched repay", func(tx *ledger.Tx, user solana.PublicKey) error {
			if _, err := BorrowTx(tx, user, sol); err != nil {
				return err
			}
			_, err := RepayTx(tx, user, sol/2)
			return err
		}, ErrInsufficientRepayment},
		{"repay without borrow", func(tx *ledger.Tx, user solana.PublicKey) error {
			_, err := RepayTx(tx, user, sol)
			return err
		}, ErrNoActiveVaultLoan},
		{"left outstanding", func(tx *ledger.Tx, user solana.PublicKey) error {
			_, err := BorrowTx(tx, user, sol)
			return err
		}, ledger.ErrLoanNotRepaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.vault(t)
			err := f.ledger.Update(context.Background(), func(tx *ledger.Tx) error {
				return tt.run(tx, f.user)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if after := f.vault(t); after != before {
				t.Errorf("vault changed: %+v -> %+v", before, after)
			}
		})
	}
}

func TestInitializeDistributionRejectsBadSum(t *testing.T) {
	l := ledger.New(ledger.Options{})
	err := l.Update(context.Background(), func(tx *ledger.Tx) error {
		return InitializeDistributionTx(tx, DistributionConfig{CreatorShareBps: 5000, ExecutorShareBps: 5000, TreasuryShareBps: 1})
	})
	if !errors.Is(err, ErrInvalidProfitDistribution) {
		t.Errorf("err = %v", err)
	}
}
