package governance

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// ProgramID owns every governance record and acts, through ConfigAddress,
// as REBEL mint authority and strategy approver.
var ProgramID = solana.MustPublicKeyFromBase58("RECwcpcHwBeDAV7tBvUuhJzsih16BaveZRC74kbBkSS")

const (
	RebelDecimals    uint8  = 9
	RebelTotalSupply uint64 = 100_000_000 * 1_000_000_000

	DefaultQuorumPercentage  uint8  = 10
	DefaultVotingPeriod      int64  = 3 * 24 * 60 * 60
	DefaultProposalThreshold uint64 = 1_000 * 1_000_000_000

	MaxDescriptionLen = 200
)

const (
	KindConfig     ledger.Kind = "governance.config"
	KindProposal   ledger.Kind = "governance.proposal"
	KindVoteRecord ledger.Kind = "governance.vote_record"
	KindTreasury   ledger.Kind = "governance.treasury"
)

// ProposalType selects what an executed proposal does.
type ProposalType uint8

const (
	ProposalStrategyApproval ProposalType = iota + 1
	ProposalParameterChange
	ProposalTreasurySpend
	ProposalProtocolUpgrade
)

func (t ProposalType) String() string {
	switch t {
	case ProposalStrategyApproval:
		return "strategy_approval"
	case ProposalParameterChange:
		return "parameter_change"
	case ProposalTreasurySpend:
		return "treasury_spend"
	case ProposalProtocolUpgrade:
		return "protocol_upgrade"
	default:
		return fmt.Sprintf("proposal_type(%d)", uint8(t))
	}
}

// ParseProposalType maps a name to its ProposalType.
func ParseProposalType(s string) (ProposalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strategy_approval":
		return ProposalStrategyApproval, nil
	case "parameter_change":
		return ProposalParameterChange, nil
	case "treasury_spend":
		return ProposalTreasurySpend, nil
	case "protocol_upgrade":
		return ProposalProtocolUpgrade, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidProposalType, s)
}

func (t ProposalType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ProposalType) UnmarshalText(b []byte) error {
	v, err := ParseProposalType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus uint8

const (
	StatusActive ProposalStatus = iota + 1
	StatusSucceeded
	StatusDefeated
	StatusExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSucceeded:
		return "succeeded"
	case StatusDefeated:
		return "defeated"
	case StatusExecuted:
		return "executed"
	default:
		return fmt.Sprintf("proposal_status(%d)", uint8(s))
	}
}

func (s ProposalStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = StatusActive
	case "succeeded":
		*s = StatusSucceeded
	case "defeated":
		*s = StatusDefeated
	case "executed":
		*s = StatusExecuted
	default:
		return fmt.Errorf("governance: unknown proposal status %q", b)
	}
	return nil
}

// VoteChoice is a voter's position.
type VoteChoice uint8

const (
	VoteYes VoteChoice = iota + 1
	VoteNo
	VoteAbstain
)

func (c VoteChoice) String() string {
	switch c {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	case VoteAbstain:
		return "abstain"
	default:
		return fmt.Sprintf("vote(%d)", uint8(c))
	}
}

// ParseVoteChoice maps a name to its VoteChoice.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return VoteYes, nil
	case "no":
		return VoteNo, nil
	case "abstain":
		return VoteAbstain, nil
	}
	return 0, fmt.Errorf("%w: vote %q", ErrInvalidConfiguration, s)
}

func (c VoteChoice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *VoteChoice) UnmarshalText(b []byte) error {
	v, err := ParseVoteChoice(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Allocation is one of the four REBEL allocation vaults.
type Allocation uint8

const (
	AllocationCommunity Allocation = iota + 1
	AllocationTreasury
	AllocationTeam
	AllocationLiquidity
)

// Allocations lists the vaults in distribution order.
var Allocations = []Allocation{AllocationCommunity, AllocationTreasury, AllocationTeam, AllocationLiquidity}

func (a Allocation) String() string {
	switch a {
	case AllocationCommunity:
		return "community"
	case AllocationTreasury:
		return "treasury"
	case AllocationTeam:
		return "team"
	case AllocationLiquidity:
		return "liquidity"
	default:
		return fmt.Sprintf("allocation(%d)", uint8(a))
	}
}

// ParseAllocation maps a name to its Allocation.
func ParseAllocation(s string) (Allocation, error) {
	for _, a := range Allocations {
		if a.String() == strings.ToLower(strings.TrimSpace(s)) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAllocation, s)
}

// Percent is the share of total supply minted into the vault.
func (a Allocation) Percent() uint8 {
	switch a {
	case AllocationCommunity:
		return 40
	case AllocationTreasury:
		return 30
	case AllocationTeam:
		return 20
	case AllocationLiquidity:
		return 10
	default:
		return 0
	}
}

func (a Allocation) seed() []byte {
	return []byte(a.String() + "_vault")
}

// Config is the governance singleton.
type Config struct {
	Admin                 solana.PublicKey `json:"admin"`
	Authority             solana.PublicKey `json:"authority"`
	RebelMint             solana.PublicKey `json:"rebel_mint"`
	TotalSupply           uint64           `json:"total_supply"`
	CirculatingSupply     uint64           `json:"circulating_supply"`
	QuorumPercentage      uint8            `json:"quorum_percentage"`
	VotingPeriodSeconds   int64            `json:"voting_period_seconds"`
	ProposalThreshold     uint64           `json:"proposal_threshold"`
	NextProposalID        uint64           `json:"next_proposal_id"`
	TotalProposals        uint64           `json:"total_proposals"`
	DistributionCompleted bool             `json:"distribution_completed"`
}

func (Config) RecordKind() ledger.Kind { return KindConfig }

// QuorumRequired is the minimum total vote weight for a proposal to pass.
func (c Config) QuorumRequired() (uint64, error) {
	return ledger.Percent(c.TotalSupply, c.QuorumPercentage)
}

// Proposal is a governance proposal and its running vote totals.
type Proposal struct {
	ID           uint64           `json:"id"`
	Type         ProposalType     `json:"type"`
	Proposer     solana.PublicKey `json:"proposer"`
	Target       solana.PublicKey `json:"target"`
	Recipient    solana.PublicKey `json:"recipient"`
	Amount       uint64           `json:"amount"`
	Description  string           `json:"description"`
	VotingStarts int64            `json:"voting_starts"`
	VotingEnds   int64            `json:"voting_ends"`
	VotesYes     uint64           `json:"votes_yes"`
	VotesNo      uint64           `json:"votes_no"`
	VotesAbstain uint64           `json:"votes_abstain"`
	Status       ProposalStatus   `json:"status"`
	Executed     bool             `json:"executed"`
}

func (Proposal) RecordKind() ledger.Kind { return KindProposal }

// TotalVotes is yes + no + abstain.
func (p Proposal) TotalVotes() (uint64, error) {
	t, err := ledger.CheckedAdd(p.VotesYes, p.VotesNo)
	if err != nil {
		return 0, err
	}
	return ledger.CheckedAdd(t, p.VotesAbstain)
}

// CheckVoting returns nil when a ballot cast at now may be counted.
func (p Proposal) CheckVoting(now int64) error {
	if now < p.VotingStarts {
		return ErrVotingNotStarted
	}
	if now > p.VotingEnds {
		return ErrVotingEnded
	}
	if p.Status != StatusActive {
		return fmt.Errorf("%w: proposal %d is %s", ErrProposalNotActive, p.ID, p.Status)
	}
	return nil
}

// VoteRecord is one voter's ballot on one proposal.
type VoteRecord struct {
	Proposal  solana.PublicKey `json:"proposal"`
	Voter     solana.PublicKey `json:"voter"`
	Weight    uint64           `json:"weight"`
	Choice    VoteChoice       `json:"choice"`
	Timestamp int64            `json:"timestamp"`
}

func (VoteRecord) RecordKind() ledger.Kind { return KindVoteRecord }

// Treasury tracks the community treasury's WSOL inflows and outflows.
type Treasury struct {
	Authority     solana.PublicKey `json:"authority"`
	Mint          solana.PublicKey `json:"mint"`
	TotalReceived uint64           `json:"total_received"`
	TotalSpent    uint64           `json:"total_spent"`
}

func (Treasury) RecordKind() ledger.Kind { return KindTreasury }

// Available is received minus spent.
func (t Treasury) Available() (uint64, error) {
	return ledger.CheckedSub(t.TotalReceived, t.TotalSpent)
}

// ConfigAddress is the governance singleton, which also serves as the
// governance authority identity.
func ConfigAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("governance"))
}

// RebelMintAddress is the REBEL token mint.
func RebelMintAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("rebel_mint"))
}

// TreasuryAddress is the treasury record and the owner of its WSOL.
func TreasuryAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("treasury"))
}

// ProposalAddress derives the address of proposal id.
func ProposalAddress(id uint64) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("proposal"), ledger.U64Seed(id))
}

// VoteRecordAddress derives the address of voter's ballot on proposal.
func VoteRecordAddress(proposal, voter solana.PublicKey) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("vote_record"), proposal.Bytes(), voter.Bytes())
}

// AllocationOwner is the identity owning an allocation vault's REBEL.
func AllocationOwner(a Allocation) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, a.seed())
}

// RegisterRecords adds the governance record kinds to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[Config](c, KindConfig)
	ledger.Register[Proposal](c, KindProposal)
	ledger.Register[VoteRecord](c, KindVoteRecord)
	ledger.Register[Treasury](c, KindTreasury)
}
