package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
)

// BalanceReader reads token account balances.
type BalanceReader interface {
	Balance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error)
}

// TokenHandler serves token balance lookups.
type TokenHandler struct {
	tokens BalanceReader
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(tokens BalanceReader, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger}
}

// GetBalance returns the balance of owner's account for mint. A missing
// account reads as zero.
// GET /api/tokens/{mint}/balances/{owner}
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	mint, err := pubkeyParam(r, "mint")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := pubkeyParam(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bal, err := h.tokens.Balance(r.Context(), mint, owner)
	if err != nil {
		writeOpError(w, r, h.logger, "token balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mint":    mint,
		"owner":   owner,
		"balance": bal,
	})
}
