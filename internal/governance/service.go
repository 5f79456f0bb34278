package governance

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

// ProposalView is a proposal with its address and current outcome.
type ProposalView struct {
	Proposal
	Address solana.PublicKey `json:"address"`
	Outcome Outcome          `json:"outcome"`
}

// TreasuryView is the treasury record with its live balance.
type TreasuryView struct {
	Treasury
	Address   solana.PublicKey `json:"address"`
	Available uint64           `json:"available"`
	Balance   uint64           `json:"balance"`
}

// Service exposes governance operations as standalone ledger transactions.
type Service struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewService creates a governance Service.
func NewService(l *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{
		ledger: l,
		logger: logger.With(slog.String("component", "governance")),
	}
}

// Initialize creates the governance singletons.
func (s *Service) Initialize(ctx context.Context, params InitParams) (Config, error) {
	var cfg Config
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = InitializeTx(tx, params)
		return err
	})
	return cfg, err
}

// DistributeTokens mints the REBEL supply into the allocation vaults.
func (s *Service) DistributeTokens(ctx context.Context) (TokensDistributed, error) {
	var ev TokensDistributed
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		ev, err = DistributeTokensTx(tx)
		return err
	})
	if err != nil {
		return TokensDistributed{}, err
	}
	s.logger.InfoContext(ctx, "rebel distributed",
		slog.String("total", ledger.FormatAmount(RebelTotalSupply, int32(RebelDecimals))),
	)
	return ev, nil
}

// GrantTokens moves REBEL from an allocation vault to recipient.
func (s *Service) GrantTokens(ctx context.Context, caller solana.PublicKey, from Allocation, recipient solana.PublicKey, amount uint64) error {
	return s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		return GrantTokensTx(tx, caller, from, recipient, amount)
	})
}

// Propose creates a proposal of any type.
func (s *Service) Propose(ctx context.Context, proposer solana.PublicKey, params ProposalParams) (Proposal, error) {
	var p Proposal
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		p, err = ProposeTx(tx, proposer, params)
		return err
	})
	if err != nil {
		return Proposal{}, err
	}
	s.logger.InfoContext(ctx, "proposal created",
		slog.Uint64("proposal_id", p.ID),
		slog.String("type", p.Type.String()),
		slog.String("proposer", proposer.String()),
	)
	return p, nil
}

// CreateProposal creates a strategy-approval proposal.
func (s *Service) CreateProposal(ctx context.Context, proposer, target solana.PublicKey, description string) (Proposal, error) {
	return s.Propose(ctx, proposer, ProposalParams{
		Type:        ProposalStrategyApproval,
		Target:      target,
		Description: description,
	})
}

// CastVote records voter's ballot.
func (s *Service) CastVote(ctx context.Context, voter solana.PublicKey, proposalID uint64, choice VoteChoice) (VoteRecord, error) {
	var rec VoteRecord
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		rec, err = CastVoteTx(tx, voter, proposalID, choice)
		return err
	})
	return rec, err
}

// ExecuteProposal executes a passed proposal.
func (s *Service) ExecuteProposal(ctx context.Context, caller solana.PublicKey, proposalID uint64, strategy solana.PublicKey) (Proposal, error) {
	var p Proposal
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		p, err = ExecuteProposalTx(tx, caller, proposalID, strategy)
		return err
	})
	if err != nil {
		return Proposal{}, err
	}
	s.logger.InfoContext(ctx, "proposal executed",
		slog.Uint64("proposal_id", p.ID),
		slog.String("type", p.Type.String()),
		slog.String("caller", caller.String()),
	)
	return p, nil
}

// DepositTreasury transfers amount from depositor to the treasury.
func (s *Service) DepositTreasury(ctx context.Context, depositor solana.PublicKey, amount uint64) (Treasury, error) {
	var t Treasury
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		t, err = DepositTreasuryTx(tx, depositor, amount)
		return err
	})
	return t, err
}

// Config returns the governance singleton.
func (s *Service) Config(ctx context.Context) (Config, error) {
	var cfg Config
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = LoadConfig(tx)
		return err
	})
	return cfg, err
}

// Treasury returns the treasury and its balance.
func (s *Service) Treasury(ctx context.Context) (TreasuryView, error) {
	var v TreasuryView
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		t, err := LoadTreasury(tx)
		if err != nil {
			return err
		}
		available, err := t.Available()
		if err != nil {
			return err
		}
		bal, err := token.Balance(tx, t.Mint, TreasuryAddress())
		if err != nil {
			return err
		}
		v = TreasuryView{Treasury: t, Address: TreasuryAddress(), Available: available, Balance: bal}
		return nil
	})
	return v, err
}

// Proposal returns proposal id with its tentative outcome.
func (s *Service) Proposal(ctx context.Context, id uint64) (ProposalView, error) {
	var v ProposalView
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		cfg, err := LoadConfig(tx)
		if err != nil {
			return err
		}
		p, err := LoadProposal(tx, id)
		if err != nil {
			return err
		}
		v, err = view(cfg, p, tx.Now())
		return err
	})
	return v, err
}

// ListProposals returns every proposal ordered by id.
func (s *Service) ListProposals(ctx context.Context) ([]ProposalView, error) {
	var out []ProposalView
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		cfg, err := LoadConfig(tx)
		if err != nil {
			return err
		}
		for _, p := range ledger.Collect[Proposal](tx) {
			v, err := view(cfg, p, tx.Now())
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// Votes returns the ballots cast on a proposal, newest first.
func (s *Service) Votes(ctx context.Context, proposalID uint64) ([]VoteRecord, error) {
	var out []VoteRecord
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		if _, err := LoadProposal(tx, proposalID); err != nil {
			return err
		}
		out = VotesTx(tx, proposalID)
		return nil
	})
	return out, err
}

// VotingPower returns owner's REBEL balance.
func (s *Service) VotingPower(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var bal uint64
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		bal, err = token.Balance(tx, RebelMintAddress(), owner)
		return err
	})
	return bal, err
}

func view(cfg Config, p Proposal, now int64) (ProposalView, error) {
	o, err := Evaluate(cfg, p, now)
	if err != nil {
		return ProposalView{}, err
	}
	return ProposalView{Proposal: p, Address: ProposalAddress(p.ID), Outcome: o}, nil
}
