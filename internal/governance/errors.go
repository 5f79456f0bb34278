package governance

import "github.com/alanyoungcy/mevrebels/internal/ledger"

var (
	ErrInsufficientTokens          = ledger.NewError(6300, "InsufficientTokens", ledger.ClassResource, "insufficient REBEL to create proposal")
	ErrVotingNotStarted            = ledger.NewError(6301, "VotingNotStarted", ledger.ClassState, "voting has not started")
	ErrVotingEnded                 = ledger.NewError(6302, "VotingEnded", ledger.ClassState, "voting period has ended")
	ErrProposalNotActive           = ledger.NewError(6303, "ProposalNotActive", ledger.ClassState, "proposal is not active")
	ErrNoVotingPower               = ledger.NewError(6304, "NoVotingPower", ledger.ClassResource, "voter holds no REBEL")
	ErrAlreadyVoted                = ledger.NewError(6305, "AlreadyVoted", ledger.ClassState, "voter has already voted on this proposal")
	ErrVotingStillActive           = ledger.NewError(6306, "VotingStillActive", ledger.ClassState, "voting period is still active")
	ErrAlreadyExecuted             = ledger.NewError(6307, "AlreadyExecuted", ledger.ClassState, "proposal has already been executed")
	ErrQuorumNotReached            = ledger.NewError(6308, "QuorumNotReached", ledger.ClassResource, "quorum not reached")
	ErrProposalDefeated            = ledger.NewError(6309, "ProposalDefeated", ledger.ClassState, "proposal defeated")
	ErrInvalidProposalType         = ledger.NewError(6310, "InvalidProposalType", ledger.ClassValidation, "proposal type cannot be executed")
	ErrInvalidStrategy             = ledger.NewError(6311, "InvalidStrategy", ledger.ClassValidation, "strategy does not match the proposal target")
	ErrUnauthorizedGovernance      = ledger.NewError(6312, "UnauthorizedGovernance", ledger.ClassAuthorization, "caller is not the governance admin")
	ErrInvalidConfiguration        = ledger.NewError(6313, "InvalidConfiguration", ledger.ClassValidation, "invalid governance configuration")
	ErrDistributionCompleted       = ledger.NewError(6314, "DistributionCompleted", ledger.ClassState, "token distribution already completed")
	ErrInsufficientTreasuryBalance = ledger.NewError(6315, "InsufficientTreasuryBalance", ledger.ClassResource, "treasury balance insufficient")
	ErrInvalidAllocation           = ledger.NewError(6316, "InvalidAllocation", ledger.ClassValidation, "unknown allocation vault")
)
