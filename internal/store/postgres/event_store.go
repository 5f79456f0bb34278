package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const defaultEventLimit = 100

// EventStore implements domain.EventStore over the ledger_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const selectEvents = `SELECT seq, id::text, kind, program, payload, ts FROM ledger_events`

// List returns the events matching f, in sequence order or newest first.
func (s *EventStore) List(ctx context.Context, f domain.EventFilter) ([]ledger.Event, error) {
	q := eventsQuery(f)
	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return scanEvents(rows)
}

func eventsQuery(f domain.EventFilter) *query {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	q := newQuery(selectEvents).where("seq > ?", int64(f.AfterSeq))
	if f.BeforeSeq > 0 {
		q.where("seq < ?", int64(f.BeforeSeq))
	}
	if f.Kind != "" {
		q.where("kind = ?", string(f.Kind))
	}
	if f.Strategy != "" {
		q.where("payload->>'strategy' = ?", f.Strategy)
	}
	if f.Since > 0 {
		q.where("ts >= ?", f.Since)
	}
	if f.Newest {
		q.orderBy("seq DESC")
	} else {
		q.orderBy("seq ASC")
	}
	return q.limit(limit)
}

// ListBefore returns events after afterSeq whose ledger timestamp is before
// the cutoff, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, afterSeq uint64, limit int) ([]ledger.Event, error) {
	q := newQuery(selectEvents).
		where("ts < ?", before.Unix()).
		where("seq > ?", int64(afterSeq)).
		orderBy("seq ASC").
		limit(limit)
	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanEvents(rows)
}

// DeleteThrough removes archived events up to and including seq.
func (s *EventStore) DeleteThrough(ctx context.Context, seq uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_events WHERE seq <= $1`, int64(seq))
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events through %d: %w", seq, err)
	}
	return tag.RowsAffected(), nil
}

func scanEvents(rows pgx.Rows) ([]ledger.Event, error) {
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			seq               int64
			id, kind, program string
			payload           []byte
			ts                int64
		)
		if err := rows.Scan(&seq, &id, &kind, &program, &payload, &ts); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		eid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("postgres: event %d id: %w", seq, err)
		}
		pid, err := solana.PublicKeyFromBase58(program)
		if err != nil {
			return nil, fmt.Errorf("postgres: event %d program: %w", seq, err)
		}
		events = append(events, ledger.Event{
			ID:        eid,
			Seq:       uint64(seq),
			Kind:      ledger.EventKind(kind),
			Program:   pid,
			Timestamp: ts,
			Payload:   payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
