package domain

import (
	"context"
	"time"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventFilter narrows event queries. AfterSeq pages forward through the
// event log; BeforeSeq with Newest pages backward.
type EventFilter struct {
	Kind      ledger.EventKind
	AfterSeq  uint64
	BeforeSeq uint64
	// Strategy matches the base58 "strategy" field of the payload.
	Strategy string
	// Since keeps events whose ledger timestamp is at or after it.
	Since  int64
	Newest bool
	Limit  int
}

// EventStore reads the durable ledger event log.
type EventStore interface {
	List(ctx context.Context, f EventFilter) ([]ledger.Event, error)
	// ListBefore pages, in seq order, through events committed before the
	// cutoff.
	ListBefore(ctx context.Context, before time.Time, afterSeq uint64, limit int) ([]ledger.Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
