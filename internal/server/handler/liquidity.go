package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/flashloan"
	"github.com/alanyoungcy/mevrebels/internal/vault"
)

// PoolService is the flash loan pool surface the handler needs.
type PoolService interface {
	Deposit(ctx context.Context, depositor solana.PublicKey, amount uint64) (flashloan.Pool, error)
	State(ctx context.Context) (flashloan.State, error)
}

// VaultService is the profit vault surface the handler needs.
type VaultService interface {
	Fund(ctx context.Context, funder solana.PublicKey, amount uint64) (vault.Vault, error)
	State(ctx context.Context) (vault.State, error)
}

// LiquidityHandler serves the flash loan pool and profit vault endpoints.
// Either side may be nil when the node runs the other liquidity mode.
type LiquidityHandler struct {
	pool   PoolService
	vault  VaultService
	logger *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler.
func NewLiquidityHandler(pool PoolService, vault VaultService, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{pool: pool, vault: vault, logger: logger}
}

type poolResponse struct {
	flashloan.State
	LiquiditySol amountView `json:"liquidity_sol"`
}

// GetPool returns the flash loan pool and its live liquidity.
// GET /api/pool
func (h *LiquidityHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, http.StatusNotFound, "flash loan pool not enabled")
		return
	}
	st, err := h.pool.State(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "pool state", err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{State: st, LiquiditySol: solAmount(st.Liquidity)})
}

// DepositPool moves SOL from the caller into the pool.
// POST /api/pool/deposit
func (h *LiquidityHandler) DepositPool(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, http.StatusNotFound, "flash loan pool not enabled")
		return
	}
	who, body, ok := h.amountRequest(w, r)
	if !ok {
		return
	}
	p, err := h.pool.Deposit(r.Context(), who, body.Amount)
	if err != nil {
		writeOpError(w, r, h.logger, "pool deposit", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: pool deposit",
		slog.String("depositor", who.String()),
		slog.String("amount", solAmount(body.Amount).Display),
	)
	writeJSON(w, http.StatusOK, p)
}

// GetVault returns the profit vault and its distribution configuration.
// GET /api/vault
func (h *LiquidityHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	if h.vault == nil {
		writeError(w, http.StatusNotFound, "profit vault not enabled")
		return
	}
	st, err := h.vault.State(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "vault state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// FundVault moves SOL from the caller into the vault.
// POST /api/vault/fund
func (h *LiquidityHandler) FundVault(w http.ResponseWriter, r *http.Request) {
	if h.vault == nil {
		writeError(w, http.StatusNotFound, "profit vault not enabled")
		return
	}
	who, body, ok := h.amountRequest(w, r)
	if !ok {
		return
	}
	v, err := h.vault.Fund(r.Context(), who, body.Amount)
	if err != nil {
		writeOpError(w, r, h.logger, "vault fund", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *LiquidityHandler) amountRequest(w http.ResponseWriter, r *http.Request) (solana.PublicKey, amountBody, bool) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return solana.PublicKey{}, amountBody{}, false
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return solana.PublicKey{}, amountBody{}, false
	}
	return who, body, true
}
