// Package governance is the REBEL-token governance program: token
// distribution, proposals, token-weighted voting, permissionless execution,
// and treasury bookkeeping of profit shares.
package governance

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

// InitParams configures Initialize. Zero values take the defaults.
type InitParams struct {
	Admin               solana.PublicKey
	TreasuryMint        solana.PublicKey
	QuorumPercentage    uint8
	VotingPeriodSeconds int64
	ProposalThreshold   uint64
}

func (p InitParams) withDefaults() InitParams {
	if p.QuorumPercentage == 0 {
		p.QuorumPercentage = DefaultQuorumPercentage
	}
	if p.VotingPeriodSeconds == 0 {
		p.VotingPeriodSeconds = DefaultVotingPeriod
	}
	if p.ProposalThreshold == 0 {
		p.ProposalThreshold = DefaultProposalThreshold
	}
	if p.TreasuryMint.IsZero() {
		p.TreasuryMint = token.NativeMint
	}
	return p
}

// InitializeTx creates the governance config, the REBEL mint, the four
// allocation vaults, and the treasury.
func InitializeTx(tx *ledger.Tx, params InitParams) (Config, error) {
	params = params.withDefaults()
	if params.QuorumPercentage > 100 {
		return Config{}, fmt.Errorf("%w: quorum %d%%", ErrInvalidConfiguration, params.QuorumPercentage)
	}
	if params.VotingPeriodSeconds < 0 {
		return Config{}, fmt.Errorf("%w: voting period %ds", ErrInvalidConfiguration, params.VotingPeriodSeconds)
	}

	authority := ConfigAddress()
	mint := RebelMintAddress()
	cfg := Config{
		Admin:               params.Admin,
		Authority:           authority,
		RebelMint:           mint,
		TotalSupply:         RebelTotalSupply,
		QuorumPercentage:    params.QuorumPercentage,
		VotingPeriodSeconds: params.VotingPeriodSeconds,
		ProposalThreshold:   params.ProposalThreshold,
	}
	if err := tx.Create(authority, cfg); err != nil {
		return Config{}, err
	}
	if err := token.CreateMint(tx, mint, authority, RebelDecimals); err != nil {
		return Config{}, err
	}
	for _, a := range Allocations {
		if _, err := token.EnsureAccount(tx, mint, AllocationOwner(a)); err != nil {
			return Config{}, err
		}
	}
	if _, err := token.EnsureAccount(tx, params.TreasuryMint, TreasuryAddress()); err != nil {
		return Config{}, err
	}
	if err := tx.Create(TreasuryAddress(), Treasury{Authority: authority, Mint: params.TreasuryMint}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig returns the governance singleton.
func LoadConfig(tx *ledger.Tx) (Config, error) {
	return ledger.Load[Config](tx, ConfigAddress())
}

// LoadTreasury returns the treasury record.
func LoadTreasury(tx *ledger.Tx) (Treasury, error) {
	return ledger.Load[Treasury](tx, TreasuryAddress())
}

// LoadProposal returns proposal id.
func LoadProposal(tx *ledger.Tx, id uint64) (Proposal, error) {
	return ledger.Load[Proposal](tx, ProposalAddress(id))
}

// DistributeTokensTx mints the full supply into the allocation vaults. It
// can succeed only once.
func DistributeTokensTx(tx *ledger.Tx) (TokensDistributed, error) {
	cfg, err := LoadConfig(tx)
	if err != nil {
		return TokensDistributed{}, err
	}
	if cfg.DistributionCompleted {
		return TokensDistributed{}, ErrDistributionCompleted
	}
	amounts := make(map[Allocation]uint64, len(Allocations))
	for _, a := range Allocations {
		amount, err := ledger.Percent(cfg.TotalSupply, a.Percent())
		if err != nil {
			return TokensDistributed{}, err
		}
		if err := token.MintTo(tx, cfg.RebelMint, cfg.Authority, AllocationOwner(a), amount); err != nil {
			return TokensDistributed{}, err
		}
		amounts[a] = amount
	}
	cfg.CirculatingSupply = cfg.TotalSupply
	cfg.DistributionCompleted = true
	tx.Put(ConfigAddress(), cfg)

	ev := TokensDistributed{
		Community: amounts[AllocationCommunity],
		Treasury:  amounts[AllocationTreasury],
		Team:      amounts[AllocationTeam],
		Liquidity: amounts[AllocationLiquidity],
		Timestamp: tx.Now(),
	}
	return ev, tx.Emit(ProgramID, EventTokensDistributed, ev)
}

// GrantTokensTx moves REBEL out of an allocation vault. Only the governance
// admin may grant.
func GrantTokensTx(tx *ledger.Tx, caller solana.PublicKey, from Allocation, recipient solana.PublicKey, amount uint64) error {
	if from.Percent() == 0 {
		return ErrInvalidAllocation
	}
	cfg, err := LoadConfig(tx)
	if err != nil {
		return err
	}
	if !caller.Equals(cfg.Admin) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedGovernance, caller)
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero grant", ErrInvalidConfiguration)
	}
	if err := token.Transfer(tx, cfg.RebelMint, AllocationOwner(from), recipient, amount); err != nil {
		return err
	}
	return tx.Emit(ProgramID, EventTokensGranted, TokensGranted{
		Allocation: from.String(),
		Recipient:  recipient,
		Amount:     amount,
		Timestamp:  tx.Now(),
	})
}

// ProposalParams describe a new proposal.
type ProposalParams struct {
	Type        ProposalType     `json:"type"`
	Target      solana.PublicKey `json:"target"`
	Recipient   solana.PublicKey `json:"recipient"`
	Amount      uint64           `json:"amount"`
	Description string           `json:"description"`
}

// ProposeTx creates an Active proposal whose voting window opens now.
func ProposeTx(tx *ledger.Tx, proposer solana.PublicKey, params ProposalParams) (Proposal, error) {
	cfg, err := LoadConfig(tx)
	if err != nil {
		return Proposal{}, err
	}
	balance, err := token.Balance(tx, cfg.RebelMint, proposer)
	if err != nil {
		return Proposal{}, err
	}
	if balance < cfg.ProposalThreshold {
		return Proposal{}, fmt.Errorf("%w: have %s REBEL, need %s", ErrInsufficientTokens,
			ledger.FormatAmount(balance, int32(RebelDecimals)),
			ledger.FormatAmount(cfg.ProposalThreshold, int32(RebelDecimals)))
	}
	if len(params.Description) > MaxDescriptionLen {
		return Proposal{}, fmt.Errorf("%w: description is %d bytes", ErrInvalidConfiguration, len(params.Description))
	}
	switch params.Type {
	case ProposalStrategyApproval, ProposalParameterChange, ProposalProtocolUpgrade:
	case ProposalTreasurySpend:
		if params.Recipient.IsZero() || params.Amount == 0 {
			return Proposal{}, fmt.Errorf("%w: treasury spend needs recipient and amount", ErrInvalidConfiguration)
		}
	default:
		return Proposal{}, ErrInvalidProposalType
	}

	now := tx.Now()
	p := Proposal{
		ID:           cfg.NextProposalID,
		Type:         params.Type,
		Proposer:     proposer,
		Target:       params.Target,
		Recipient:    params.Recipient,
		Amount:       params.Amount,
		Description:  params.Description,
		VotingStarts: now,
		VotingEnds:   now + cfg.VotingPeriodSeconds,
		Status:       StatusActive,
	}
	if cfg.NextProposalID, err = ledger.CheckedInc(cfg.NextProposalID); err != nil {
		return Proposal{}, err
	}
	if cfg.TotalProposals, err = ledger.CheckedInc(cfg.TotalProposals); err != nil {
		return Proposal{}, err
	}
	addr := ProposalAddress(p.ID)
	if err := tx.Create(addr, p); err != nil {
		return Proposal{}, err
	}
	tx.Put(ConfigAddress(), cfg)

	return p, tx.Emit(ProgramID, EventProposalCreated, ProposalCreated{
		Proposal:    addr,
		ProposalID:  p.ID,
		Type:        p.Type,
		Proposer:    proposer,
		Target:      p.Target,
		Description: p.Description,
		VotingEnds:  p.VotingEnds,
		Timestamp:   now,
	})
}

// CreateProposalTx creates a strategy-approval proposal for target.
func CreateProposalTx(tx *ledger.Tx, proposer, target solana.PublicKey, description string) (Proposal, error) {
	return ProposeTx(tx, proposer, ProposalParams{
		Type:        ProposalStrategyApproval,
		Target:      target,
		Description: description,
	})
}

// CastVoteTx records voter's ballot with weight equal to their REBEL balance.
// A second ballot by the same voter fails with AlreadyVoted.
func CastVoteTx(tx *ledger.Tx, voter solana.PublicKey, proposalID uint64, choice VoteChoice) (VoteRecord, error) {
	p, err := LoadProposal(tx, proposalID)
	if err != nil {
		return VoteRecord{}, err
	}
	now := tx.Now()
	if err := p.CheckVoting(now); err != nil {
		return VoteRecord{}, err
	}
	cfg, err := LoadConfig(tx)
	if err != nil {
		return VoteRecord{}, err
	}
	weight, err := token.Balance(tx, cfg.RebelMint, voter)
	if err != nil {
		return VoteRecord{}, err
	}
	if weight == 0 {
		return VoteRecord{}, ErrNoVotingPower
	}

	switch choice {
	case VoteYes:
		p.VotesYes, err = ledger.CheckedAdd(p.VotesYes, weight)
	case VoteNo:
		p.VotesNo, err = ledger.CheckedAdd(p.VotesNo, weight)
	case VoteAbstain:
		p.VotesAbstain, err = ledger.CheckedAdd(p.VotesAbstain, weight)
	default:
		return VoteRecord{}, fmt.Errorf("%w: vote choice %d", ErrInvalidConfiguration, uint8(choice))
	}
	if err != nil {
		return VoteRecord{}, err
	}

	proposalAddr := ProposalAddress(proposalID)
	rec := VoteRecord{
		Proposal:  proposalAddr,
		Voter:     voter,
		Weight:    weight,
		Choice:    choice,
		Timestamp: now,
	}
	if err := tx.Create(VoteRecordAddress(proposalAddr, voter), rec); err != nil {
		if errors.Is(err, ledger.ErrAccountAlreadyExists) {
			return VoteRecord{}, fmt.Errorf("%w: %s on proposal %d", ErrAlreadyVoted, voter, proposalID)
		}
		return VoteRecord{}, err
	}
	tx.Put(proposalAddr, p)

	return rec, tx.Emit(ProgramID, EventVoteCast, VoteCast{
		Proposal:     proposalAddr,
		ProposalID:   proposalID,
		Voter:        voter,
		Choice:       choice,
		Weight:       weight,
		VotesYes:     p.VotesYes,
		VotesNo:      p.VotesNo,
		VotesAbstain: p.VotesAbstain,
		Timestamp:    now,
	})
}

// VotesTx collects the ballots on a proposal, newest first. Ties keep a
// stable voter order.
func VotesTx(tx *ledger.Tx, proposalID uint64) []VoteRecord {
	addr := ProposalAddress(proposalID)
	var out []VoteRecord
	for _, v := range ledger.Collect[VoteRecord](tx) {
		if v.Proposal.Equals(addr) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Voter.String() < out[j].Voter.String()
	})
	return out
}

// Outcome is the evaluation of a proposal at a point in time.
type Outcome struct {
	Status         ProposalStatus `json:"status"`
	TotalVotes     uint64         `json:"total_votes"`
	QuorumRequired uint64         `json:"quorum_required"`
	QuorumReached  bool           `json:"quorum_reached"`
}

// Evaluate computes the tentative outcome of p at now without mutating it.
func Evaluate(cfg Config, p Proposal, now int64) (Outcome, error) {
	total, err := p.TotalVotes()
	if err != nil {
		return Outcome{}, err
	}
	quorum, err := cfg.QuorumRequired()
	if err != nil {
		return Outcome{}, err
	}
	o := Outcome{
		Status:         p.Status,
		TotalVotes:     total,
		QuorumRequired: quorum,
		QuorumReached:  total >= quorum,
	}
	if p.Executed || p.Status != StatusActive || now <= p.VotingEnds {
		return o, nil
	}
	if o.QuorumReached && p.VotesYes > p.VotesNo {
		o.Status = StatusSucceeded
	} else {
		o.Status = StatusDefeated
	}
	return o, nil
}

// ExecuteProposalTx executes a closed proposal that reached quorum and a
// yes majority. Anyone may call it; strategy is the strategy account for a
// strategy-approval proposal and is ignored otherwise.
func ExecuteProposalTx(tx *ledger.Tx, caller solana.PublicKey, proposalID uint64, strategy solana.PublicKey) (Proposal, error) {
	p, err := LoadProposal(tx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if tx.Now() <= p.VotingEnds {
		return Proposal{}, ErrVotingStillActive
	}
	if p.Executed {
		return Proposal{}, ErrAlreadyExecuted
	}
	cfg, err := LoadConfig(tx)
	if err != nil {
		return Proposal{}, err
	}
	total, err := p.TotalVotes()
	if err != nil {
		return Proposal{}, err
	}
	quorum, err := cfg.QuorumRequired()
	if err != nil {
		return Proposal{}, err
	}
	if total < quorum {
		return Proposal{}, fmt.Errorf("%w: %d of %d", ErrQuorumNotReached, total, quorum)
	}
	if p.VotesYes <= p.VotesNo {
		return Proposal{}, fmt.Errorf("%w: yes %d, no %d", ErrProposalDefeated, p.VotesYes, p.VotesNo)
	}
	p.Status = StatusSucceeded

	switch p.Type {
	case ProposalStrategyApproval:
		if !strategy.Equals(p.Target) {
			return Proposal{}, fmt.Errorf("%w: got %s, proposal targets %s", ErrInvalidStrategy, strategy, p.Target)
		}
		if _, err := registry.ApproveTx(tx, cfg.Authority, strategy); err != nil {
			return Proposal{}, err
		}
	case ProposalTreasurySpend:
		if err := spendTreasury(tx, p); err != nil {
			return Proposal{}, err
		}
	case ProposalParameterChange, ProposalProtocolUpgrade:
		return Proposal{}, fmt.Errorf("%w: %s", ErrInvalidProposalType, p.Type)
	default:
		return Proposal{}, ErrInvalidProposalType
	}

	p.Executed = true
	p.Status = StatusExecuted
	tx.Put(ProposalAddress(proposalID), p)

	return p, tx.Emit(ProgramID, EventProposalExecuted, ProposalExecuted{
		Proposal:     ProposalAddress(proposalID),
		ProposalID:   proposalID,
		Type:         p.Type,
		Target:       p.Target,
		ExecutedBy:   caller,
		VotesYes:     p.VotesYes,
		VotesNo:      p.VotesNo,
		VotesAbstain: p.VotesAbstain,
		Timestamp:    tx.Now(),
	})
}

func spendTreasury(tx *ledger.Tx, p Proposal) error {
	t, err := LoadTreasury(tx)
	if err != nil {
		return err
	}
	available, err := t.Available()
	if err != nil {
		return err
	}
	if available < p.Amount {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientTreasuryBalance, available, p.Amount)
	}
	if err := token.Transfer(tx, t.Mint, TreasuryAddress(), p.Recipient, p.Amount); err != nil {
		return err
	}
	if t.TotalSpent, err = ledger.CheckedAdd(t.TotalSpent, p.Amount); err != nil {
		return err
	}
	tx.Put(TreasuryAddress(), t)
	return tx.Emit(ProgramID, EventTreasurySpent, TreasurySpent{
		ProposalID: p.ID,
		Recipient:  p.Recipient,
		Amount:     p.Amount,
		TotalSpent: t.TotalSpent,
		Timestamp:  tx.Now(),
	})
}

// DepositTreasuryTx transfers amount of the treasury asset from depositor to
// the treasury and adds it to total received. A zero amount is a no-op.
func DepositTreasuryTx(tx *ledger.Tx, depositor solana.PublicKey, amount uint64) (Treasury, error) {
	t, err := LoadTreasury(tx)
	if err != nil {
		return Treasury{}, err
	}
	if amount == 0 {
		return t, nil
	}
	if t.TotalReceived, err = ledger.CheckedAdd(t.TotalReceived, amount); err != nil {
		return Treasury{}, err
	}
	if err := token.Transfer(tx, t.Mint, depositor, TreasuryAddress(), amount); err != nil {
		return Treasury{}, err
	}
	tx.Put(TreasuryAddress(), t)
	return t, tx.Emit(ProgramID, EventTreasuryDeposited, TreasuryDeposited{
		Depositor:     depositor,
		Amount:        amount,
		TotalReceived: t.TotalReceived,
		Timestamp:     tx.Now(),
	})
}
