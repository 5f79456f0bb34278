package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/registry"
)

// StrategyService defines the registry methods the strategy handler needs.
type StrategyService interface {
	CreateStrategy(ctx context.Context, creator solana.PublicKey, params registry.CreateParams) (registry.Strategy, error)
	Approve(ctx context.Context, caller, addr solana.PublicKey) (registry.Strategy, error)
	Reject(ctx context.Context, caller, addr solana.PublicKey) (registry.Strategy, error)
	Get(ctx context.Context, addr solana.PublicKey) (registry.Strategy, error)
	Stats(ctx context.Context, addr solana.PublicKey) (registry.Stats, error)
	ListStrategies(ctx context.Context, f registry.ListFilter) ([]registry.Strategy, error)
}

// StrategyRunner executes an approved strategy.
type StrategyRunner interface {
	ExecuteStrategy(ctx context.Context, executor, strategy solana.PublicKey, borrowAmount, minProfit uint64) (engine.Receipt, error)
}

// StrategyHandler serves strategy registry endpoints.
type StrategyHandler struct {
	strategies StrategyService
	runner     StrategyRunner
	logger     *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(strategies StrategyService, runner StrategyRunner, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{
		strategies: strategies,
		runner:     runner,
		logger:     logger,
	}
}

type strategyView struct {
	registry.Strategy
	Address solana.PublicKey `json:"address"`
}

func viewStrategy(s registry.Strategy) strategyView {
	return strategyView{Strategy: s, Address: s.Address()}
}

type listStrategiesResponse struct {
	Strategies []strategyView `json:"strategies"`
}

// ListStrategies returns registered strategies ordered by id.
// GET /api/strategies?creator=...&status=approved&limit=50&offset=0
func (h *StrategyHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	creator, err := optionalPubkey(r, "creator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := registry.ListFilter{Creator: creator}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := registry.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	opts := parseListOpts(r)
	filter.Limit, filter.Offset = opts.Limit, opts.Offset

	list, err := h.strategies.ListStrategies(r.Context(), filter)
	if err != nil {
		writeOpError(w, r, h.logger, "list strategies", err)
		return
	}
	out := make([]strategyView, 0, len(list))
	for _, s := range list {
		out = append(out, viewStrategy(s))
	}
	writeJSON(w, http.StatusOK, listStrategiesResponse{Strategies: out})
}

// CreateStrategy registers a Pending strategy owned by the caller.
// POST /api/strategies
func (h *StrategyHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	creator, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var params registry.CreateParams
	if err := decodeBody(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.strategies.CreateStrategy(r.Context(), creator, params)
	if err != nil {
		writeOpError(w, r, h.logger, "create strategy", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: strategy created",
		slog.String("strategy", s.Address().String()),
		slog.Uint64("id", s.ID),
	)
	writeJSON(w, http.StatusCreated, viewStrategy(s))
}

type strategyDetail struct {
	strategyView
	Stats registry.Stats `json:"stats"`
}

// GetStrategy returns one strategy with its performance summary.
// GET /api/strategies/{address}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	addr, err := pubkeyParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.strategies.Get(r.Context(), addr)
	if err != nil {
		writeOpError(w, r, h.logger, "get strategy", err)
		return
	}
	stats, err := h.strategies.Stats(r.Context(), addr)
	if err != nil {
		writeOpError(w, r, h.logger, "strategy stats", err)
		return
	}
	writeJSON(w, http.StatusOK, strategyDetail{strategyView: viewStrategy(s), Stats: stats})
}

// DeriveAddress returns the strategy address for a creator and id without
// touching the ledger.
// GET /api/strategies/address?creator=...&id=0
func (h *StrategyHandler) DeriveAddress(w http.ResponseWriter, r *http.Request) {
	creator, err := optionalPubkey(r, "creator")
	if err != nil || creator.IsZero() {
		writeError(w, http.StatusBadRequest, "creator query parameter required")
		return
	}
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"creator": creator,
		"id":      id,
		"address": registry.StrategyAddress(creator, id),
	})
}

// Approve marks a Pending strategy Approved. The caller must be the admin
// or the governance authority.
// POST /api/strategies/{address}/approve
func (h *StrategyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve strategy", h.strategies.Approve)
}

// Reject marks a Pending strategy Rejected.
// POST /api/strategies/{address}/reject
func (h *StrategyHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject strategy", h.strategies.Reject)
}

func (h *StrategyHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, caller, addr solana.PublicKey) (registry.Strategy, error),
) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	addr, err := pubkeyParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := fn(r.Context(), who, addr)
	if err != nil {
		writeOpError(w, r, h.logger, op, err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: "+op,
		slog.String("strategy", addr.String()),
		slog.String("status", s.Status.String()),
	)
	writeJSON(w, http.StatusOK, viewStrategy(s))
}

type executeRequest struct {
	BorrowAmount uint64 `json:"borrow_amount"`
	MinProfit    uint64 `json:"min_profit"`
}

// Execute runs an approved strategy synchronously with the caller as
// executor and returns the receipt.
// POST /api/strategies/{address}/execute
func (h *StrategyHandler) Execute(w http.ResponseWriter, r *http.Request) {
	executor, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	addr, err := pubkeyParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.runner.ExecuteStrategy(r.Context(), executor, addr, req.BorrowAmount, req.MinProfit)
	if err != nil {
		writeOpError(w, r, h.logger, "execute strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
