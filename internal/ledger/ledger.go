// Package ledger is the record arena the protocol programs run on. It owns
// deterministic addressing, checked arithmetic, the error taxonomy, and the
// transactional overlay that gives every operation all-or-nothing semantics.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// recentEventCap bounds the in-memory event tail kept for readers that have
// no durable event store.
const recentEventCap = 1024

// Batch is everything a committing transaction persists.
type Batch struct {
	Records []RecordEntry
	Events  []Event
}

// Journal makes commits durable. Commit must persist the whole batch or
// nothing; a failed Commit aborts the transaction.
type Journal interface {
	Commit(ctx context.Context, batch Batch) error
}

// Options configures a Ledger.
type Options struct {
	Clock   Clock
	Codec   *Codec
	Journal Journal
	Sinks   []EventSink
	Logger  *slog.Logger
}

// Ledger serializes all mutating operations through a single writer and
// applies their effects atomically.
type Ledger struct {
	mu      sync.RWMutex
	records map[solana.PublicKey]Record
	seq     uint64
	recent  []Event

	// sinkMu is taken before mu is released so sinks see commits in order.
	sinkMu sync.Mutex
	sinks  []EventSink

	clock   Clock
	codec   *Codec
	journal Journal
	logger  *slog.Logger
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	codec := opts.Codec
	if codec == nil {
		codec = NewCodec()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		records: make(map[solana.PublicKey]Record),
		sinks:   opts.Sinks,
		clock:   clock,
		codec:   codec,
		journal: opts.Journal,
		logger:  logger.With(slog.String("component", "ledger")),
	}
}

// Codec returns the codec used to encode records for the journal.
func (l *Ledger) Codec() *Codec { return l.codec }

// AddSink registers an event sink. Sinks added after startup only see events
// committed from then on.
func (l *Ledger) AddSink(s EventSink) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Restore loads previously journaled records into an empty ledger.
func (l *Ledger) Restore(entries []RecordEntry, lastSeq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) > 0 {
		return fmt.Errorf("ledger: restore into non-empty ledger")
	}
	for _, e := range entries {
		rec, err := l.codec.Decode(e.Kind, e.Data)
		if err != nil {
			return fmt.Errorf("ledger: restore %s: %w", e.Address, err)
		}
		l.records[e.Address] = rec
	}
	l.seq = lastSeq
	l.logger.Info("ledger restored",
		slog.Int("records", len(entries)),
		slog.Uint64("seq", lastSeq),
	)
	return nil
}

// Seq returns the sequence number of the last committed event.
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// RecentEvents returns up to limit of the most recent events, oldest first.
func (l *Ledger) RecentEvents(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// View runs fn against a read-only snapshot. Writes made by fn are dropped.
func (l *Ledger) View(ctx context.Context, fn func(tx *Tx) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(newTx(ctx, l.clock.Now().Unix(), l.records))
}

// Update runs fn as one atomic operation. If fn or any BeforeCommit check
// returns an error, or the journal rejects the batch, no effect of fn is kept.
func (l *Ledger) Update(ctx context.Context, fn func(tx *Tx) error) error {
	l.mu.Lock()
	events, err := l.commit(ctx, fn)
	if err != nil || len(events) == 0 {
		l.mu.Unlock()
		return err
	}
	l.sinkMu.Lock()
	l.mu.Unlock()
	defer l.sinkMu.Unlock()

	for _, s := range l.sinks {
		if err := s.Publish(ctx, events); err != nil {
			l.logger.ErrorContext(ctx, "event sink failed",
				slog.Uint64("first_seq", events[0].Seq),
				slog.Int("events", len(events)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// commit must be called with mu held.
func (l *Ledger) commit(ctx context.Context, fn func(tx *Tx) error) ([]Event, error) {
	tx := newTx(ctx, l.clock.Now().Unix(), l.records)
	if err := fn(tx); err != nil {
		return nil, err
	}
	for _, check := range tx.checks {
		if err := check(); err != nil {
			return nil, err
		}
	}
	if len(tx.order) == 0 && len(tx.events) == 0 {
		return nil, nil
	}

	seq := l.seq
	events := make([]Event, 0, len(tx.events))
	for _, pe := range tx.events {
		seq++
		events = append(events, Event{
			ID:        uuid.New(),
			Seq:       seq,
			Kind:      pe.kind,
			Program:   pe.program,
			Timestamp: tx.now,
			Payload:   pe.payload,
		})
	}

	if l.journal != nil {
		batch := Batch{Events: events}
		for _, addr := range tx.order {
			rec := tx.writes[addr]
			data, err := l.codec.Encode(rec)
			if err != nil {
				return nil, err
			}
			batch.Records = append(batch.Records, RecordEntry{
				Address: addr,
				Kind:    rec.RecordKind(),
				Data:    data,
				Seq:     seq,
			})
		}
		if err := l.journal.Commit(ctx, batch); err != nil {
			return nil, fmt.Errorf("ledger: journal commit: %w", err)
		}
	}

	for _, addr := range tx.order {
		l.records[addr] = tx.writes[addr]
	}
	l.seq = seq

	l.recent = append(l.recent, events...)
	if over := len(l.recent) - recentEventCap; over > 0 {
		l.recent = append([]Event(nil), l.recent[over:]...)
	}

	l.logger.DebugContext(ctx, "ledger commit",
		slog.Int("records", len(tx.order)),
		slog.Int("events", len(events)),
		slog.Uint64("seq", seq),
	)
	return events, nil
}
