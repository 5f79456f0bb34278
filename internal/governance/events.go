package governance

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const (
	EventTokensDistributed ledger.EventKind = "TokensDistributed"
	EventTokensGranted     ledger.EventKind = "TokensGranted"
	EventProposalCreated   ledger.EventKind = "ProposalCreated"
	EventVoteCast          ledger.EventKind = "VoteCast"
	EventProposalExecuted  ledger.EventKind = "ProposalExecuted"
	EventTreasuryDeposited ledger.EventKind = "TreasuryDeposited"
	EventTreasurySpent     ledger.EventKind = "TreasurySpent"
)

type TokensDistributed struct {
	Community uint64 `json:"community"`
	Treasury  uint64 `json:"treasury"`
	Team      uint64 `json:"team"`
	Liquidity uint64 `json:"liquidity"`
	Timestamp int64  `json:"timestamp"`
}

type TokensGranted struct {
	Allocation string           `json:"allocation"`
	Recipient  solana.PublicKey `json:"recipient"`
	Amount     uint64           `json:"amount"`
	Timestamp  int64            `json:"timestamp"`
}

type ProposalCreated struct {
	Proposal    solana.PublicKey `json:"proposal"`
	ProposalID  uint64           `json:"proposal_id"`
	Type        ProposalType     `json:"type"`
	Proposer    solana.PublicKey `json:"proposer"`
	Target      solana.PublicKey `json:"target"`
	Description string           `json:"description"`
	VotingEnds  int64            `json:"voting_ends"`
	Timestamp   int64            `json:"timestamp"`
}

type VoteCast struct {
	Proposal     solana.PublicKey `json:"proposal"`
	ProposalID   uint64           `json:"proposal_id"`
	Voter        solana.PublicKey `json:"voter"`
	Choice       VoteChoice       `json:"choice"`
	Weight       uint64           `json:"weight"`
	VotesYes     uint64           `json:"votes_yes"`
	VotesNo      uint64           `json:"votes_no"`
	VotesAbstain uint64           `json:"votes_abstain"`
	Timestamp    int64            `json:"timestamp"`
}

type ProposalExecuted struct {
	Proposal     solana.PublicKey `json:"proposal"`
	ProposalID   uint64           `json:"proposal_id"`
	Type         ProposalType     `json:"type"`
	Target       solana.PublicKey `json:"target"`
	ExecutedBy   solana.PublicKey `json:"executed_by"`
	VotesYes     uint64           `json:"votes_yes"`
	VotesNo      uint64           `json:"votes_no"`
	VotesAbstain uint64           `json:"votes_abstain"`
	Timestamp    int64            `json:"timestamp"`
}

type TreasuryDeposited struct {
	Depositor     solana.PublicKey `json:"depositor"`
	Amount        uint64           `json:"amount"`
	TotalReceived uint64           `json:"total_received"`
	Timestamp     int64            `json:"timestamp"`
}

type TreasurySpent struct {
	ProposalID uint64           `json:"proposal_id"`
	Recipient  solana.PublicKey `json:"recipient"`
	Amount     uint64           `json:"amount"`
	TotalSpent uint64           `json:"total_spent"`
	Timestamp  int64            `json:"timestamp"`
}
