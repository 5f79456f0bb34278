package governance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

const (
	rebel = uint64(1_000_000_000)
	sol   = ledger.LamportsPerSol
	start = int64(1_700_000_000)
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk.PublicKey()
}

type fixture struct {
	ledger *ledger.Ledger
	clock  *ledger.ManualClock
	gov    *Service
	reg    *registry.Registry
	admin  solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := ledger.NewManualClock(time.Unix(start, 0))
	l := ledger.New(ledger.Options{Clock: clock})
	f := &fixture{
		ledger: l,
		clock:  clock,
		gov:    NewService(l, logger),
		reg:    registry.New(l, logger),
		admin:  newKey(t),
	}
	err := l.Update(ctx, func(tx *ledger.Tx) error {
		if err := token.CreateMint(tx, token.NativeMint, f.admin, 9); err != nil {
			return err
		}
		if err := token.MintTo(tx, token.NativeMint, f.admin, f.admin, 10*sol); err != nil {
			return err
		}
		return registry.InitializeAdminTx(tx, f.admin, ConfigAddress())
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.Initialize(ctx, InitParams{Admin: f.admin}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.DistributeTokens(ctx); err != nil {
		t.Fatal(err)
	}
	return f
}

// holder returns a fresh identity holding amount REBEL.
func (f *fixture) holder(t *testing.T, amount uint64) solana.PublicKey {
	t.Helper()
	who := newKey(t)
	if err := f.gov.GrantTokens(context.Background(), f.admin, AllocationCommunity, who, amount); err != nil {
		t.Fatal(err)
	}
	return who
}

func (f *fixture) pendingStrategy(t *testing.T) solana.PublicKey {
	t.Helper()
	s, err := f.reg.CreateStrategy(context.Background(), newKey(t), registry.CreateParams{
		Dexes:              []registry.DexType{registry.DexRaydium},
		TokenPairs:         []registry.TokenPair{{TokenA: token.NativeMint, TokenB: newKey(t)}},
		ProfitThresholdBps: 50,
		MaxSlippageBps:     100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s.Address()
}

func (f *fixture) closeVoting(t *testing.T) {
	t.Helper()
	f.clock.Advance(time.Duration(DefaultVotingPeriod+1) * time.Second)
}

func TestDistributeTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	want := map[Allocation]uint64{
		AllocationCommunity: 40_000_000 * rebel,
		AllocationTreasury:  30_000_000 * rebel,
		AllocationTeam:      20_000_000 * rebel,
		AllocationLiquidity: 10_000_000 * rebel,
	}
	for a, amount := range want {
		got, err := f.gov.VotingPower(ctx, AllocationOwner(a))
		if err != nil {
			t.Fatal(err)
		}
		if got != amount {
			t.Errorf("%s vault = %d, want %d", a, got, amount)
		}
	}
	cfg, _ := f.gov.Config(ctx)
	if !cfg.DistributionCompleted || cfg.CirculatingSupply != RebelTotalSupply {
		t.Errorf("config = %+v", cfg)
	}
	if _, err := f.gov.DistributeTokens(ctx); !errors.Is(err, ErrDistributionCompleted) {
		t.Errorf("second distribution: err = %v", err)
	}
}

func TestInitializeValidation(t *testing.T) {
	l := ledger.New(ledger.Options{})
	err := l.Update(context.Background(), func(tx *ledger.Tx) error {
		_, err := InitializeTx(tx, InitParams{QuorumPercentage: 101})
		return err
	})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("err = %v", err)
	}
}

func TestCreateProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.pendingStrategy(t)

	poor := f.holder(t, DefaultProposalThreshold-1)
	if _, err := f.gov.CreateProposal(ctx, poor, target, "approve"); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("below threshold: err = %v", err)
	}

	proposer := f.holder(t, DefaultProposalThreshold)
	long := strings.Repeat("x", MaxDescriptionLen+1)
	if _, err := f.gov.CreateProposal(ctx, proposer, target, long); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("long description: err = %v", err)
	}

	p, err := f.gov.CreateProposal(ctx, proposer, target, strings.Repeat("x", MaxDescriptionLen))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 0 || p.Status != StatusActive || p.Type != ProposalStrategyApproval {
		t.Errorf("proposal = %+v", p)
	}
	if p.VotingStarts != start || p.VotingEnds != start+DefaultVotingPeriod {
		t.Errorf("window = [%d, %d]", p.VotingStarts, p.VotingEnds)
	}

	second, err := f.gov.CreateProposal(ctx, proposer, target, "again")
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := f.gov.Config(ctx)
	if second.ID != 1 || cfg.NextProposalID != 2 || cfg.TotalProposals != 2 {
		t.Errorf("second id %d, config %+v", second.ID, cfg)
	}
}

func TestOneVotePerVoter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposer := f.holder(t, DefaultProposalThreshold)
	p, err := f.gov.CreateProposal(ctx, proposer, f.pendingStrategy(t), "")
	if err != nil {
		t.Fatal(err)
	}

	voter := f.holder(t, 5_000*rebel)
	rec, err := f.gov.CastVote(ctx, voter, p.ID, VoteYes)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Weight != 5_000*rebel {
		t.Errorf("weight = %d", rec.Weight)
	}

	_, err = f.gov.CastVote(ctx, voter, p.ID, VoteNo)
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("second vote: err = %v", err)
	}
	v, _ := f.gov.Proposal(ctx, p.ID)
	if v.VotesYes != 5_000*rebel || v.VotesNo != 0 {
		t.Errorf("totals after rejected vote: yes %d no %d", v.VotesYes, v.VotesNo)
	}
}

func TestVotesListsBallotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposer := f.holder(t, DefaultProposalThreshold)
	p, err := f.gov.CreateProposal(ctx, proposer, f.pendingStrategy(t), "")
	if err != nil {
		t.Fatal(err)
	}
	other, err := f.gov.CreateProposal(ctx, proposer, f.pendingStrategy(t), "")
	if err != nil {
		t.Fatal(err)
	}

	early := f.holder(t, rebel)
	late := f.holder(t, 2*rebel)
	if _, err := f.gov.CastVote(ctx, early, p.ID, VoteNo); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.gov.CastVote(ctx, late, p.ID, VoteYes); err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.CastVote(ctx, early, other.ID, VoteYes); err != nil {
		t.Fatal(err)
	}

	votes, err := f.gov.Votes(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != 2 {
		t.Fatalf("got %d votes, want 2", len(votes))
	}
	if !votes[0].Voter.Equals(late) || votes[0].Weight != 2*rebel || votes[0].Choice != VoteYes {
		t.Errorf("newest vote = %+v", votes[0])
	}
	if !votes[1].Voter.Equals(early) || votes[1].Choice != VoteNo {
		t.Errorf("oldest vote = %+v", votes[1])
	}

	if _, err := f.gov.Votes(ctx, 99); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("unknown proposal: err = %v", err)
	}
}

func TestCastVoteGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposer := f.holder(t, DefaultProposalThreshold)
	p, _ := f.gov.CreateProposal(ctx, proposer, f.pendingStrategy(t), "")

	if _, err := f.gov.CastVote(ctx, newKey(t), p.ID, VoteYes); !errors.Is(err, ErrNoVotingPower) {
		t.Errorf("no balance: err = %v", err)
	}
	if _, err := f.gov.CastVote(ctx, proposer, 99, VoteYes); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("unknown proposal: err = %v", err)
	}

	f.clock.Set(time.Unix(start-1, 0))
	if _, err := f.gov.CastVote(ctx, proposer, p.ID, VoteYes); !errors.Is(err, ErrVotingNotStarted) {
		t.Errorf("before start: err = %v", err)
	}

	f.clock.Set(time.Unix(p.VotingEnds, 0))
	if _, err := f.gov.CastVote(ctx, proposer, p.ID, VoteAbstain); err != nil {
		t.Errorf("at end boundary: %v", err)
	}

	f.clock.Set(time.Unix(p.VotingEnds+1, 0))
	late := f.holder(t, rebel)
	if _, err := f.gov.CastVote(ctx, late, p.ID, VoteYes); !errors.Is(err, ErrVotingEnded) {
		t.Errorf("after end: err = %v", err)
	}
}

func TestCheckVoting(t *testing.T) {
	p := Proposal{ID: 7, Status: StatusActive, VotingStarts: start, VotingEnds: start + 100}
	closed := p
	closed.Status = StatusExecuted

	tests := []struct {
		name string
		p    Proposal
		now  int64
		want error
	}{
		{"at start", p, start, nil},
		{"at end", p, start + 100, nil},
		{"before start", p, start - 1, ErrVotingNotStarted},
		{"after end", p, start + 101, ErrVotingEnded},
		{"not active", closed, start + 1, ErrProposalNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.CheckVoting(tt.now)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQuorumBoundary(t *testing.T) {
	quorum := RebelTotalSupply / 10
	tests := []struct {
		name    string
		weight  uint64
		wantErr error
	}{
		{"exactly at quorum", quorum, nil},
		{"one unit below", quorum - 1, ErrQuorumNotReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			target := f.pendingStrategy(t)
			voter := f.holder(t, tt.weight)
			p, err := f.gov.CreateProposal(ctx, voter, target, "")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.gov.CastVote(ctx, voter, p.ID, VoteYes); err != nil {
				t.Fatal(err)
			}
			f.closeVoting(t)

			_, err = f.gov.ExecuteProposal(ctx, newKey(t), p.ID, target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			s, _ := f.reg.Get(ctx, target)
			if s.Status != registry.StatusApproved {
				t.Errorf("strategy status = %s", s.Status)
			}
		})
	}
}

func TestExecuteProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.pendingStrategy(t)
	whale := f.holder(t, 20_000_000*rebel)
	p, err := f.gov.CreateProposal(ctx, whale, target, "list it")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.CastVote(ctx, whale, p.ID, VoteYes); err != nil {
		t.Fatal(err)
	}

	anyone := newKey(t)
	if _, err := f.gov.ExecuteProposal(ctx, anyone, p.ID, target); !errors.Is(err, ErrVotingStillActive) {
		t.Fatalf("early execute: err = %v", err)
	}
	f.closeVoting(t)

	if _, err := f.gov.ExecuteProposal(ctx, anyone, p.ID, f.pendingStrategy(t)); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("wrong strategy: err = %v", err)
	}

	v, _ := f.gov.Proposal(ctx, p.ID)
	if v.Outcome.Status != StatusSucceeded || !v.Outcome.QuorumReached {
		t.Errorf("outcome = %+v", v.Outcome)
	}

	executed, err := f.gov.ExecuteProposal(ctx, anyone, p.ID, target)
	if err != nil {
		t.Fatal(err)
	}
	if !executed.Executed || executed.Status != StatusExecuted {
		t.Errorf("proposal = %+v", executed)
	}
	s, _ := f.reg.Get(ctx, target)
	if s.Status != registry.StatusApproved {
		t.Errorf("strategy status = %s", s.Status)
	}

	if _, err := f.gov.ExecuteProposal(ctx, anyone, p.ID, target); !errors.Is(err, ErrAlreadyExecuted) {
		t.Errorf("re-execute: err = %v", err)
	}
}

func TestExecuteDefeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.pendingStrategy(t)
	yes := f.holder(t, 6_000_000*rebel)
	no := f.holder(t, 6_000_000*rebel)
	p, _ := f.gov.CreateProposal(ctx, yes, target, "")
	if _, err := f.gov.CastVote(ctx, yes, p.ID, VoteYes); err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.CastVote(ctx, no, p.ID, VoteNo); err != nil {
		t.Fatal(err)
	}
	f.closeVoting(t)

	if _, err := f.gov.ExecuteProposal(ctx, yes, p.ID, target); !errors.Is(err, ErrProposalDefeated) {
		t.Fatalf("tie: err = %v", err)
	}
	v, _ := f.gov.Proposal(ctx, p.ID)
	if v.Status != StatusActive || v.Outcome.Status != StatusDefeated {
		t.Errorf("stored %s, outcome %s", v.Status, v.Outcome.Status)
	}
	s, _ := f.reg.Get(ctx, target)
	if s.Status != registry.StatusPending {
		t.Errorf("strategy status = %s", s.Status)
	}
}

func TestTreasurySpend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.gov.DepositTreasury(ctx, f.admin, sol); err != nil {
		t.Fatal(err)
	}

	whale := f.holder(t, 20_000_000*rebel)
	recipient := newKey(t)
	over, err := f.gov.Propose(ctx, whale, ProposalParams{Type: ProposalTreasurySpend, Recipient: recipient, Amount: 2 * sol})
	if err != nil {
		t.Fatal(err)
	}
	spend, err := f.gov.Propose(ctx, whale, ProposalParams{Type: ProposalTreasurySpend, Recipient: recipient, Amount: sol / 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []uint64{over.ID, spend.ID} {
		if _, err := f.gov.CastVote(ctx, whale, id, VoteYes); err != nil {
			t.Fatal(err)
		}
	}
	f.closeVoting(t)

	if _, err := f.gov.ExecuteProposal(ctx, whale, over.ID, solana.PublicKey{}); !errors.Is(err, ErrInsufficientTreasuryBalance) {
		t.Fatalf("overspend: err = %v", err)
	}
	if _, err := f.gov.ExecuteProposal(ctx, whale, spend.ID, solana.PublicKey{}); err != nil {
		t.Fatal(err)
	}

	tv, err := f.gov.Treasury(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tv.TotalReceived != sol || tv.TotalSpent != sol/2 || tv.Available != sol/2 || tv.Balance != sol/2 {
		t.Errorf("treasury = %+v", tv)
	}
	got, _ := token.NewService(f.ledger).Balance(ctx, token.NativeMint, recipient)
	if got != sol/2 {
		t.Errorf("recipient balance = %d", got)
	}
}

func TestParameterChangeNotExecutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	whale := f.holder(t, 20_000_000*rebel)
	p, err := f.gov.Propose(ctx, whale, ProposalParams{Type: ProposalParameterChange, Description: "raise quorum"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.gov.CastVote(ctx, whale, p.ID, VoteYes); err != nil {
		t.Fatal(err)
	}
	f.closeVoting(t)
	if _, err := f.gov.ExecuteProposal(ctx, whale, p.ID, solana.PublicKey{}); !errors.Is(err, ErrInvalidProposalType) {
		t.Errorf("err = %v", err)
	}
}

func TestGrantTokensRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.gov.GrantTokens(context.Background(), newKey(t), AllocationTeam, newKey(t), rebel)
	if !errors.Is(err, ErrUnauthorizedGovernance) {
		t.Errorf("err = %v", err)
	}
}

func TestDepositTreasuryAdditive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		if _, err := f.gov.DepositTreasury(ctx, f.admin, 158_200_000); err != nil {
			t.Fatal(err)
		}
	}
	tv, _ := f.gov.Treasury(ctx)
	if tv.TotalReceived != 3*158_200_000 || tv.Balance != 3*158_200_000 {
		t.Errorf("treasury = %+v", tv)
	}
	events := f.ledger.RecentEvents(1)
	if len(events) != 1 || events[0].Kind != EventTreasuryDeposited {
		t.Errorf("last event = %+v", events)
	}
}
