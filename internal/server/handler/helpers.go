package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/server/middleware"
)

// CallerHeader carries the base58 identity the request acts as. It is
// trusted only behind API-key authentication.
const CallerHeader = middleware.CallerHeader

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type protocolErrorBody struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// statusForClass maps a protocol error class to an HTTP status.
func statusForClass(c ledger.Class) int {
	switch c {
	case ledger.ClassValidation:
		return http.StatusBadRequest
	case ledger.ClassAuthorization:
		return http.StatusForbidden
	case ledger.ClassState:
		return http.StatusConflict
	case ledger.ClassResource:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeOpError reports the failure of op. Protocol errors keep their code
// and class; a missing account is a 404; anything else is logged and hidden
// behind a 500.
func writeOpError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if errors.Is(err, ledger.ErrAccountNotFound) || errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if pe, ok := ledger.AsError(err); ok {
		status := statusForClass(pe.Class)
		if status == http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "handler: "+op+" integrity failure",
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, protocolErrorBody{
			Error: err.Error(),
			Code:  pe.Code,
			Name:  pe.Name,
			Class: pe.Class.String(),
		})
		return
	}
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// caller returns the identity asserted in CallerHeader.
func caller(r *http.Request) (solana.PublicKey, error) {
	v := strings.TrimSpace(r.Header.Get(CallerHeader))
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s header required", CallerHeader)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", CallerHeader, err)
	}
	return pk, nil
}

// pubkeyParam parses a base58 path parameter.
func pubkeyParam(r *http.Request, name string) (solana.PublicKey, error) {
	v := pathParam(r, name)
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return pk, nil
}

// uintParam parses a decimal path parameter.
func uintParam(r *http.Request, name string) (uint64, error) {
	v := pathParam(r, name)
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// optionalPubkey parses a base58 query value; empty yields the zero key.
func optionalPubkey(r *http.Request, name string) (solana.PublicKey, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return pk, nil
}

// parseListOpts extracts pagination from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

// pathParam extracts a named path parameter (Go 1.22+ routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// amountBody is the body of every deposit-style request.
type amountBody struct {
	Amount uint64 `json:"amount"`
}

// amountView pairs a base-unit amount with its decimal rendering.
type amountView struct {
	Raw     uint64 `json:"raw"`
	Display string `json:"display"`
}

func solAmount(v uint64) amountView {
	return amountView{Raw: v, Display: ledger.FormatSol(v)}
}
