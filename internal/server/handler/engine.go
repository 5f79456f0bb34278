package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/executor"
)

const defaultRequestTTL = 30 * time.Second

// EngineStats reports execution totals.
type EngineStats interface {
	Stats(ctx context.Context) (engine.StatsView, error)
	Mode() string
}

// ExecutorStats reports the node executor's counters.
type ExecutorStats interface {
	Stats() executor.Stats
}

// StreamAppender queues messages on a durable stream.
type StreamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// EngineHandler serves execution statistics and queues execution requests
// for the node executor.
type EngineHandler struct {
	engine   EngineStats
	executor ExecutorStats
	bus      StreamAppender
	stream   string
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngineHandler creates an EngineHandler. executor and bus may be nil on
// nodes that do not run the request stream.
func NewEngineHandler(eng EngineStats, exec ExecutorStats, bus StreamAppender, stream string, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{
		engine:   eng,
		executor: exec,
		bus:      bus,
		stream:   stream,
		now:      time.Now,
		logger:   logger,
	}
}

type engineStatsResponse struct {
	Mode     string           `json:"mode"`
	Stats    engine.StatsView `json:"stats"`
	Profit   amountView       `json:"total_net_profit_sol"`
	Executor *executor.Stats  `json:"executor,omitempty"`
}

// GetStats returns the execution totals and, when running, the executor
// counters.
// GET /api/engine/stats
func (h *EngineHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context())
	if err != nil {
		writeOpError(w, r, h.logger, "engine stats", err)
		return
	}
	resp := engineStatsResponse{
		Mode:   h.engine.Mode(),
		Stats:  st,
		Profit: solAmount(st.TotalNetProfit),
	}
	if h.executor != nil {
		es := h.executor.Stats()
		resp.Executor = &es
	}
	writeJSON(w, http.StatusOK, resp)
}

type execRequestBody struct {
	Strategy         solana.PublicKey `json:"strategy"`
	BorrowAmount     uint64           `json:"borrow_amount"`
	MinProfit        uint64           `json:"min_profit"`
	ExpiresInSeconds int              `json:"expires_in_seconds"`
}

// QueueExecution appends an execution request to the stream consumed by
// the node executor and returns its id.
// POST /api/exec-requests
func (h *EngineHandler) QueueExecution(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "execution request stream not configured")
		return
	}
	var body execRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Strategy.IsZero() {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return
	}
	if body.BorrowAmount == 0 {
		writeError(w, http.StatusBadRequest, "borrow_amount must be positive")
		return
	}
	ttl := defaultRequestTTL
	if body.ExpiresInSeconds > 0 {
		ttl = time.Duration(body.ExpiresInSeconds) * time.Second
	}

	now := h.now().UTC()
	req := domain.ExecRequest{
		ID:           uuid.NewString(),
		Strategy:     body.Strategy,
		BorrowAmount: body.BorrowAmount,
		MinProfit:    body.MinProfit,
		RequestedAt:  now,
		ExpiresAt:    now.Add(ttl),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		writeOpError(w, r, h.logger, "queue execution", err)
		return
	}
	if err := h.bus.StreamAppend(r.Context(), h.stream, payload); err != nil {
		writeOpError(w, r, h.logger, "queue execution", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: execution queued",
		slog.String("request_id", req.ID),
		slog.String("strategy", req.Strategy.String()),
	)
	writeJSON(w, http.StatusAccepted, req)
}
