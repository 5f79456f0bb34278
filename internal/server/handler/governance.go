package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// GovernanceService is the DAO surface the governance handler needs.
type GovernanceService interface {
	Config(ctx context.Context) (governance.Config, error)
	Propose(ctx context.Context, proposer solana.PublicKey, params governance.ProposalParams) (governance.Proposal, error)
	Proposal(ctx context.Context, id uint64) (governance.ProposalView, error)
	ListProposals(ctx context.Context) ([]governance.ProposalView, error)
	CastVote(ctx context.Context, voter solana.PublicKey, proposalID uint64, choice governance.VoteChoice) (governance.VoteRecord, error)
	Votes(ctx context.Context, proposalID uint64) ([]governance.VoteRecord, error)
	ExecuteProposal(ctx context.Context, caller solana.PublicKey, proposalID uint64, strategy solana.PublicKey) (governance.Proposal, error)
	Treasury(ctx context.Context) (governance.TreasuryView, error)
	DepositTreasury(ctx context.Context, depositor solana.PublicKey, amount uint64) (governance.Treasury, error)
	VotingPower(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GrantTokens(ctx context.Context, caller solana.PublicKey, from governance.Allocation, recipient solana.PublicKey, amount uint64) error
}

// GovernanceHandler serves proposal, vote and treasury endpoints.
type GovernanceHandler struct {
	gov    GovernanceService
	logger *slog.Logger
}

// NewGovernanceHandler creates a GovernanceHandler.
func NewGovernanceHandler(gov GovernanceService, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{gov: gov, logger: logger}
}

// GetConfig returns the governance singleton.
// GET /api/governance
func (h *GovernanceHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.gov.Config(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "governance config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type listProposalsResponse struct {
	Proposals []governance.ProposalView `json:"proposals"`
}

// ListProposals returns every proposal with its tentative outcome.
// GET /api/governance/proposals
func (h *GovernanceHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	list, err := h.gov.ListProposals(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "list proposals", err)
		return
	}
	if list == nil {
		list = []governance.ProposalView{}
	}
	writeJSON(w, http.StatusOK, listProposalsResponse{Proposals: list})
}

// CreateProposal opens a proposal on behalf of the caller.
// POST /api/governance/proposals
func (h *GovernanceHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	proposer, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var params governance.ProposalParams
	if err := decodeBody(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.gov.Propose(r.Context(), proposer, params)
	if err != nil {
		writeOpError(w, r, h.logger, "create proposal", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: proposal created",
		slog.Uint64("id", p.ID),
		slog.String("type", p.Type.String()),
	)
	writeJSON(w, http.StatusCreated, p)
}

// GetProposal returns a single proposal.
// GET /api/governance/proposals/{id}
func (h *GovernanceHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.gov.Proposal(r.Context(), id)
	if err != nil {
		writeOpError(w, r, h.logger, "get proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type listVotesResponse struct {
	Votes []governance.VoteRecord `json:"votes"`
	Total int                     `json:"total"`
}

// ListVotes returns the ballots on a proposal, newest first.
// GET /api/governance/proposals/{id}/votes
func (h *GovernanceHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	votes, err := h.gov.Votes(r.Context(), id)
	if err != nil {
		writeOpError(w, r, h.logger, "list votes", err)
		return
	}
	if votes == nil {
		votes = []governance.VoteRecord{}
	}
	writeJSON(w, http.StatusOK, listVotesResponse{Votes: votes, Total: len(votes)})
}

type voteRequest struct {
	Choice governance.VoteChoice `json:"choice"`
}

// CastVote records the caller's vote weighted by their REBEL balance.
// POST /api/governance/proposals/{id}/votes
func (h *GovernanceHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	voter, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.gov.CastVote(r.Context(), voter, id, req.Choice)
	if err != nil {
		writeOpError(w, r, h.logger, "cast vote", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type executeProposalRequest struct {
	Strategy solana.PublicKey `json:"strategy"`
}

// ExecuteProposal finalizes a proposal whose voting window has closed.
// Strategy approvals must name the target strategy.
// POST /api/governance/proposals/{id}/execute
func (h *GovernanceHandler) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req executeProposalRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	p, err := h.gov.ExecuteProposal(r.Context(), who, id, req.Strategy)
	if err != nil {
		writeOpError(w, r, h.logger, "execute proposal", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: proposal executed",
		slog.Uint64("id", p.ID),
		slog.String("status", p.Status.String()),
	)
	writeJSON(w, http.StatusOK, p)
}

type treasuryResponse struct {
	governance.TreasuryView
	AvailableSol amountView `json:"available_sol"`
}

// GetTreasury returns the treasury counters and its live balance.
// GET /api/governance/treasury
func (h *GovernanceHandler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	v, err := h.gov.Treasury(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "treasury", err)
		return
	}
	writeJSON(w, http.StatusOK, treasuryResponse{TreasuryView: v, AvailableSol: solAmount(v.Available)})
}

// DepositTreasury moves WSOL from the caller into the treasury.
// POST /api/governance/treasury/deposit
func (h *GovernanceHandler) DepositTreasury(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.gov.DepositTreasury(r.Context(), who, body.Amount)
	if err != nil {
		writeOpError(w, r, h.logger, "treasury deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// VotingPower returns an owner's REBEL balance.
// GET /api/governance/voting-power/{owner}
func (h *GovernanceHandler) VotingPower(w http.ResponseWriter, r *http.Request) {
	owner, err := pubkeyParam(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	power, err := h.gov.VotingPower(r.Context(), owner)
	if err != nil {
		writeOpError(w, r, h.logger, "voting power", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"raw":     power,
		"display": ledger.FormatAmount(power, int32(governance.RebelDecimals)),
	})
}

type grantRequest struct {
	Allocation string           `json:"allocation"`
	Recipient  solana.PublicKey `json:"recipient"`
	Amount     uint64           `json:"amount"`
}

// GrantTokens transfers REBEL out of an allocation vault. Only the
// governance admin may grant.
// POST /api/governance/grants
func (h *GovernanceHandler) GrantTokens(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req grantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := governance.ParseAllocation(req.Allocation)
	if err != nil {
		writeOpError(w, r, h.logger, "grant tokens", err)
		return
	}
	if err := h.gov.GrantTokens(r.Context(), who, from, req.Recipient, req.Amount); err != nil {
		writeOpError(w, r, h.logger, "grant tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allocation": from.String(),
		"recipient":  req.Recipient,
		"amount":     req.Amount,
	})
}
