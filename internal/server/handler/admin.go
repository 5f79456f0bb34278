package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/registry"
)

// AdminService manages the registry's approval authorities.
type AdminService interface {
	AdminConfig(ctx context.Context) (registry.AdminConfig, error)
	RotateAdmin(ctx context.Context, caller, newAdmin solana.PublicKey) (registry.AdminConfig, error)
	SetGovernanceAuthority(ctx context.Context, caller, governance solana.PublicKey) (registry.AdminConfig, error)
}

// AuditLister reads the infrastructure audit log.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the registry admin endpoints.
type AdminHandler struct {
	admin  AdminService
	audit  AuditLister
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// WithAuditLog enables GET /api/admin/audit.
func (h *AdminHandler) WithAuditLog(audit AuditLister) *AdminHandler {
	h.audit = audit
	return h
}

// GetConfig returns the current admin and governance authority.
// GET /api/admin
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.admin.AdminConfig(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "admin config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type authorityRequest struct {
	Authority solana.PublicKey `json:"authority"`
}

// RotateAdmin hands the admin role to a new key.
// POST /api/admin/rotate
func (h *AdminHandler) RotateAdmin(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "rotate admin", h.admin.RotateAdmin)
}

// SetGovernanceAuthority changes which key may approve strategies besides
// the admin.
// POST /api/admin/governance-authority
func (h *AdminHandler) SetGovernanceAuthority(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "set governance authority", h.admin.SetGovernanceAuthority)
}

func (h *AdminHandler) update(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, caller, authority solana.PublicKey) (registry.AdminConfig, error),
) {
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req authorityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Authority.IsZero() {
		writeError(w, http.StatusBadRequest, "authority is required")
		return
	}
	cfg, err := fn(r.Context(), who, req.Authority)
	if err != nil {
		writeOpError(w, r, h.logger, op, err)
		return
	}
	h.logger.WarnContext(r.Context(), "handler: "+op,
		slog.String("caller", who.String()),
		slog.String("authority", req.Authority.String()),
	)
	writeJSON(w, http.StatusOK, cfg)
}

type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns the audit log, newest first. Only the admin may read it.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log requires postgres")
		return
	}
	who, err := caller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	cfg, err := h.admin.AdminConfig(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "admin config", err)
		return
	}
	if !cfg.Admin.Equals(who) {
		writeOpError(w, r, h.logger, "list audit", registry.ErrUnauthorizedAdmin)
		return
	}

	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeOpError(w, r, h.logger, "list audit", err)
		return
	}
	out := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
