package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/analytics"
	"github.com/alanyoungcy/mevrebels/internal/registry"
)

// AnalyticsService is the read-model surface behind the leaderboard, the
// execution history and the overview.
type AnalyticsService interface {
	Leaderboard(ctx context.Context, limit int) ([]registry.Stats, error)
	TopCreators(ctx context.Context, limit int) ([]analytics.CreatorStats, error)
	Creator(ctx context.Context, creator solana.PublicKey) (analytics.CreatorStats, error)
	Executions(ctx context.Context, strategy solana.PublicKey, beforeSeq uint64, limit int) ([]analytics.Execution, error)
	Overview(ctx context.Context) (analytics.Overview, error)
	ExecutionChart(ctx context.Context, interval time.Duration, buckets int) ([]analytics.Bucket, error)
}

// AnalyticsHandler serves leaderboard and analytics endpoints.
type AnalyticsHandler struct {
	analytics AnalyticsService
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(svc AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: svc, logger: logger}
}

// rankLimit reads ?limit for ranked lists. Default 10, max 100.
func rankLimit(r *http.Request) int {
	limit := 10
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, 100)
	}
	return limit
}

type leaderboardResponse struct {
	Leaderboard []registry.Stats `json:"leaderboard"`
}

// Leaderboard ranks approved strategies by total profit.
// GET /api/leaderboard?limit=10
func (h *AnalyticsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.analytics.Leaderboard(r.Context(), rankLimit(r))
	if err != nil {
		writeOpError(w, r, h.logger, "leaderboard", err)
		return
	}
	if board == nil {
		board = []registry.Stats{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Leaderboard: board})
}

type creatorsResponse struct {
	Creators []analytics.CreatorStats `json:"creators"`
}

// TopCreators ranks creators by the profit shares they earned.
// GET /api/leaderboard/creators?limit=10
func (h *AnalyticsHandler) TopCreators(w http.ResponseWriter, r *http.Request) {
	creators, err := h.analytics.TopCreators(r.Context(), rankLimit(r))
	if err != nil {
		writeOpError(w, r, h.logger, "top creators", err)
		return
	}
	if creators == nil {
		creators = []analytics.CreatorStats{}
	}
	writeJSON(w, http.StatusOK, creatorsResponse{Creators: creators})
}

// GetCreator returns one creator's totals.
// GET /api/leaderboard/creators/{creator}
func (h *AnalyticsHandler) GetCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := pubkeyParam(r, "creator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cs, err := h.analytics.Creator(r.Context(), creator)
	if err != nil {
		writeOpError(w, r, h.logger, "get creator", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

type executionsResponse struct {
	Executions []analytics.Execution `json:"executions"`
	Total      int                   `json:"total"`
	// NextBeforeSeq continues the history; zero when the page was short.
	NextBeforeSeq uint64 `json:"next_before_seq,omitempty"`
}

// ListExecutions pages backward through a strategy's executions.
// GET /api/strategies/{address}/executions?limit=50&before_seq=0
func (h *AnalyticsHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	addr, err := pubkeyParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var before uint64
	if v := r.URL.Query().Get("before_seq"); v != "" {
		if before, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid before_seq")
			return
		}
	}
	limit := parseListOpts(r).Limit

	execs, err := h.analytics.Executions(r.Context(), addr, before, limit)
	if err != nil {
		writeOpError(w, r, h.logger, "list executions", err)
		return
	}
	resp := executionsResponse{Executions: execs, Total: len(execs)}
	if resp.Executions == nil {
		resp.Executions = []analytics.Execution{}
	}
	if len(execs) == limit {
		resp.NextBeforeSeq = execs[len(execs)-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}

// Overview returns protocol-wide counts and engine totals.
// GET /api/analytics/overview
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.analytics.Overview(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

type chartResponse struct {
	Interval string             `json:"interval"`
	Data     []analytics.Bucket `json:"data"`
}

// ExecutionChart buckets executions over time, newest first.
// GET /api/analytics/chart/executions?interval=1h&buckets=24
func (h *AnalyticsHandler) ExecutionChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval := time.Hour
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid interval")
			return
		}
		interval = d
	}
	buckets := 24
	if v := q.Get("buckets"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid buckets")
			return
		}
		buckets = n
	}

	data, err := h.analytics.ExecutionChart(r.Context(), interval, buckets)
	if err != nil {
		writeOpError(w, r, h.logger, "execution chart", err)
		return
	}
	writeJSON(w, http.StatusOK, chartResponse{Interval: interval.String(), Data: data})
}
