package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// EventLister reads committed ledger events. postgres.EventStore satisfies
// it; RecentEvents serves nodes running without a database.
type EventLister interface {
	List(ctx context.Context, f domain.EventFilter) ([]ledger.Event, error)
}

// RecentEventSource is the in-memory tail kept by the ledger.
type RecentEventSource interface {
	RecentEvents(limit int) []ledger.Event
}

// RecentEvents adapts the ledger's in-memory tail to EventLister.
type RecentEvents struct {
	Source RecentEventSource
}

// List filters the in-memory tail. Events older than the tail are not
// available.
func (r RecentEvents) List(_ context.Context, f domain.EventFilter) ([]ledger.Event, error) {
	tail := r.Source.RecentEvents(0)
	if f.Newest {
		tail = slices.Clone(tail)
		slices.Reverse(tail)
	}
	var out []ledger.Event
	for _, e := range tail {
		if !matchEvent(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func matchEvent(e ledger.Event, f domain.EventFilter) bool {
	if e.Seq <= f.AfterSeq || (f.BeforeSeq > 0 && e.Seq >= f.BeforeSeq) {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Since > 0 && e.Timestamp < f.Since {
		return false
	}
	if f.Strategy != "" {
		var p struct {
			Strategy string `json:"strategy"`
		}
		if json.Unmarshal(e.Payload, &p) != nil || p.Strategy != f.Strategy {
			return false
		}
	}
	return true
}

// EventHandler serves the ledger event log.
type EventHandler struct {
	events EventLister
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventLister, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

type listEventsResponse struct {
	Events  []ledger.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
}

// ListEvents pages forward through the event log.
// GET /api/events?kind=StrategyExecuted&after_seq=0&limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.EventFilter{
		Kind:  ledger.EventKind(q.Get("kind")),
		Limit: parseListOpts(r).Limit,
	}
	if v := q.Get("after_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_seq")
			return
		}
		f.AfterSeq = n
	}

	events, err := h.events.List(r.Context(), f)
	if err != nil {
		writeOpError(w, r, h.logger, "list events", err)
		return
	}
	resp := listEventsResponse{Events: events, LastSeq: f.AfterSeq}
	if resp.Events == nil {
		resp.Events = []ledger.Event{}
	}
	if n := len(events); n > 0 {
		resp.LastSeq = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
