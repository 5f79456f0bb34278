package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/flashloan"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

const sol = ledger.LamportsPerSol

type memJournal struct {
	batches []ledger.Batch
}

func (j *memJournal) Commit(_ context.Context, b ledger.Batch) error {
	j.batches = append(j.batches, b)
	return nil
}

// snapshot folds journaled batches into the latest entry per address.
func (j *memJournal) snapshot() ([]ledger.RecordEntry, uint64) {
	latest := make(map[solana.PublicKey]ledger.RecordEntry)
	var seq uint64
	for _, b := range j.batches {
		for _, r := range b.Records {
			latest[r.Address] = r
		}
		for _, e := range b.Events {
			seq = e.Seq
		}
	}
	out := make([]ledger.RecordEntry, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	return out, seq
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk.PublicKey()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testParams(admin solana.PublicKey, mode string) Params {
	return Params{
		Admin:            admin,
		Mode:             mode,
		DistributeTokens: true,
		OperatorFunding:  1_000 * sol,
		InitialLiquidity: 100 * sol,
		VenueReserve:     50 * sol,
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	ctx := context.Background()
	j := &memJournal{}
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	l := ledger.New(ledger.Options{Clock: clock, Codec: NewCodec(), Journal: j, Logger: discard()})
	admin := newKey(t)

	rep, err := Bootstrap(ctx, l, testParams(admin, "Pool"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"liquidity_mint", "registry_admin", "governance", "token_distribution", "profit_distribution", "flash_pool", "engine"}
	if len(rep.Created) != len(want) {
		t.Fatalf("created = %v, want %v", rep.Created, want)
	}
	for i := range want {
		if rep.Created[i] != want[i] {
			t.Fatalf("created = %v, want %v", rep.Created, want)
		}
	}
	if rep.Mode != engine.ModePool {
		t.Errorf("mode = %q", rep.Mode)
	}

	batches, seq := len(j.batches), l.Seq()
	rep, err = Bootstrap(ctx, l, testParams(admin, engine.ModePool))
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Created) != 0 {
		t.Errorf("second bootstrap created %v", rep.Created)
	}
	if len(j.batches) != batches || l.Seq() != seq {
		t.Errorf("second bootstrap wrote %d batches", len(j.batches)-batches)
	}

	_, err = Bootstrap(ctx, l, testParams(admin, engine.ModeVault))
	if !errors.Is(err, engine.ErrLiquidityModeMismatch) {
		t.Errorf("mode switch err = %v", err)
	}

	cfg, err := registry.New(l, discard()).AdminConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Admin != admin || cfg.Governance != governance.ConfigAddress() {
		t.Errorf("admin config = %+v", cfg)
	}
}

func TestBootstrapRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		params Params
		want   error
	}{
		{name: "unknown mode", params: Params{Admin: newKey(t), Mode: "amm"}, want: engine.ErrInvalidLiquidityMode},
		{name: "bad split", params: Params{Admin: newKey(t), CreatorShareBps: 5000, ExecutorShareBps: 5000, TreasuryShareBps: 1}},
		{name: "no admin", params: Params{}},
		{name: "fee over cap", params: Params{Admin: newKey(t), FeeBps: fee(101)}, want: flashloan.ErrFeeTooHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New(ledger.Options{Logger: discard()})
			_, err := Bootstrap(ctx, l, tt.params)
			if err == nil {
				t.Fatal("bootstrap succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if l.Seq() != 0 {
				t.Errorf("failed bootstrap committed events")
			}
		})
	}
}

func fee(bps uint16) *uint16 { return &bps }

func TestBootstrapFee(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		mode string
		fee  *uint16
		want uint16
	}{
		{"pool default", engine.ModePool, nil, flashloan.DefaultFeeBps},
		{"pool zero", engine.ModePool, fee(0), 0},
		{"pool cap", engine.ModePool, fee(100), 100},
		{"vault zero", engine.ModeVault, fee(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New(ledger.Options{Codec: NewCodec(), Logger: discard()})
			params := testParams(newKey(t), tt.mode)
			params.FeeBps = tt.fee
			if _, err := Bootstrap(ctx, l, params); err != nil {
				t.Fatal(err)
			}
			p, err := New(l, Options{Mode: tt.mode, Logger: discard()})
			if err != nil {
				t.Fatal(err)
			}
			var got uint16
			if tt.mode == engine.ModePool {
				st, err := p.Pool.State(ctx)
				if err != nil {
					t.Fatal(err)
				}
				got = st.FeeBps
			} else {
				st, err := p.Vault.State(ctx)
				if err != nil {
					t.Fatal(err)
				}
				got = st.FeeBps
			}
			if got != tt.want {
				t.Errorf("fee = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestGovernedExecution walks a strategy from creation through a governance
// vote to a 10 SOL execution in both liquidity modes.
func TestGovernedExecution(t *testing.T) {
	for _, mode := range []string{engine.ModePool, engine.ModeVault} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
			l := ledger.New(ledger.Options{Clock: clock, Codec: NewCodec(), Logger: discard()})
			admin, creator, executor, voter := newKey(t), newKey(t), newKey(t), newKey(t)
			if _, err := Bootstrap(ctx, l, testParams(admin, mode)); err != nil {
				t.Fatal(err)
			}
			p, err := New(l, Options{Mode: mode, Logger: discard()})
			if err != nil {
				t.Fatal(err)
			}

			s, err := p.Registry.CreateStrategy(ctx, creator, registry.CreateParams{
				Dexes:              []registry.DexType{registry.DexRaydium, registry.DexOrca},
				TokenPairs:         []registry.TokenPair{{TokenA: token.NativeMint, TokenB: newKey(t)}},
				ProfitThresholdBps: 50,
				MaxSlippageBps:     100,
			})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Engine.ExecuteStrategy(ctx, executor, s.Address(), 10*sol, 0); !errors.Is(err, registry.ErrStrategyNotApproved) {
				t.Fatalf("pending execute err = %v", err)
			}

			if err := p.Governance.GrantTokens(ctx, admin, governance.AllocationCommunity, voter, 20_000_000*1_000_000_000); err != nil {
				t.Fatal(err)
			}
			prop, err := p.Governance.CreateProposal(ctx, voter, s.Address(), "approve raydium/orca")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Governance.CastVote(ctx, voter, prop.ID, governance.VoteYes); err != nil {
				t.Fatal(err)
			}
			clock.Advance(time.Duration(governance.DefaultVotingPeriod+1) * time.Second)
			if _, err := p.Governance.ExecuteProposal(ctx, executor, prop.ID, s.Address()); err != nil {
				t.Fatal(err)
			}

			r, err := p.Engine.ExecuteStrategy(ctx, executor, s.Address(), 10*sol, sol/2)
			if err != nil {
				t.Fatal(err)
			}
			if r.NetProfit != 791_000_000 || r.CreatorShare != 316_400_000 || r.ExecutorShare != 316_400_000 || r.TreasuryShare != 158_200_000 {
				t.Errorf("receipt = %+v", r)
			}
			tv, err := p.Governance.Treasury(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if tv.TotalReceived != 158_200_000 || tv.Balance != 158_200_000 {
				t.Errorf("treasury = %+v", tv)
			}
			got, err := p.Registry.Get(ctx, s.Address())
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != registry.StatusApproved || got.ExecutionCount != 1 || got.TotalProfit != 791_000_000 {
				t.Errorf("strategy = %+v", got)
			}
		})
	}
}

func TestJournalRestore(t *testing.T) {
	ctx := context.Background()
	j := &memJournal{}
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	l := ledger.New(ledger.Options{Clock: clock, Codec: NewCodec(), Journal: j, Logger: discard()})
	admin, creator, executor := newKey(t), newKey(t), newKey(t)
	if _, err := Bootstrap(ctx, l, testParams(admin, engine.ModeVault)); err != nil {
		t.Fatal(err)
	}
	p, err := New(l, Options{Mode: engine.ModeVault, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Registry.CreateStrategy(ctx, creator, registry.CreateParams{
		Dexes:              []registry.DexType{registry.DexMeteora},
		TokenPairs:         []registry.TokenPair{{TokenA: token.NativeMint, TokenB: newKey(t)}},
		ProfitThresholdBps: 10,
		MaxSlippageBps:     500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Registry.Approve(ctx, admin, s.Address()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Engine.ExecuteStrategy(ctx, executor, s.Address(), 10*sol, 0); err != nil {
		t.Fatal(err)
	}

	entries, seq := j.snapshot()
	restored := ledger.New(ledger.Options{Clock: clock, Codec: NewCodec(), Logger: discard()})
	if err := restored.Restore(entries, seq); err != nil {
		t.Fatal(err)
	}
	if restored.Seq() != l.Seq() {
		t.Errorf("restored seq = %d, want %d", restored.Seq(), l.Seq())
	}
	rp, err := New(restored, Options{Mode: engine.ModeVault, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}
	r, err := rp.Engine.ExecuteStrategy(ctx, executor, s.Address(), 10*sol, 0)
	if err != nil {
		t.Fatalf("execute after restore: %v", err)
	}
	if r.NetProfit != 791_000_000 {
		t.Errorf("net profit = %d", r.NetProfit)
	}
	bal, err := rp.Tokens.Balance(ctx, token.NativeMint, executor)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 2*316_400_000 {
		t.Errorf("executor balance = %d", bal)
	}
}
