package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// SeqReader reports the last committed ledger sequence.
type SeqReader interface {
	Seq() uint64
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    string
	ledger  SeqReader
	checks  map[string]HealthCheck
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (postgres, redis, s3) to its check.
func NewHealthHandler(mode string, ledger SeqReader, checks map[string]HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:    mode,
		ledger:  ledger,
		checks:  checks,
		started: time.Now(),
		logger:  logger,
	}
}

// HealthCheck reports the node mode, ledger position and the result of each
// dependency check. Any failing check turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	resp := map[string]any{
		"status":       status,
		"mode":         h.mode,
		"dependencies": deps,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.ledger != nil {
		resp["ledger_seq"] = h.ledger.Seq()
	}
	writeJSON(w, code, resp)
}
