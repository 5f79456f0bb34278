package postgres

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// Journal implements ledger.Journal. Each ledger commit becomes one database
// transaction that upserts the touched records and appends the new events.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

const upsertRecord = `
	INSERT INTO ledger_records (address, kind, data, updated_seq, updated_at)
	VALUES ($1, $2, $3::jsonb, $4, NOW())
	ON CONFLICT (address) DO UPDATE SET
		kind = EXCLUDED.kind,
		data = EXCLUDED.data,
		updated_seq = EXCLUDED.updated_seq,
		updated_at = EXCLUDED.updated_at`

const insertEvent = `
	INSERT INTO ledger_events (seq, id, kind, program, payload, ts)
	VALUES ($1, $2::uuid, $3, $4, $5::jsonb, $6)`

// Commit persists the batch atomically.
func (j *Journal) Commit(ctx context.Context, b ledger.Batch) error {
	if len(b.Records) == 0 && len(b.Events) == 0 {
		return nil
	}

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: journal begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range b.Records {
		batch.Queue(upsertRecord, r.Address.String(), string(r.Kind), string(r.Data), int64(r.Seq))
	}
	for _, e := range b.Events {
		batch.Queue(insertEvent, int64(e.Seq), e.ID.String(), string(e.Kind), e.Program.String(), string(e.Payload), e.Timestamp)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: journal write %d/%d: %w", i+1, batch.Len(), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: journal batch close: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: journal commit: %w", err)
	}
	return nil
}

// Snapshot loads every record and the last committed sequence number, in the
// form ledger.Restore expects.
func (j *Journal) Snapshot(ctx context.Context) ([]ledger.RecordEntry, uint64, error) {
	rows, err := j.pool.Query(ctx, `SELECT address, kind, data, updated_seq FROM ledger_records`)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: snapshot records: %w", err)
	}
	defer rows.Close()

	var entries []ledger.RecordEntry
	for rows.Next() {
		var (
			addr, kind string
			data       []byte
			seq        int64
		)
		if err := rows.Scan(&addr, &kind, &data, &seq); err != nil {
			return nil, 0, fmt.Errorf("postgres: scan record: %w", err)
		}
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: record address %q: %w", addr, err)
		}
		entries = append(entries, ledger.RecordEntry{
			Address: pk,
			Kind:    ledger.Kind(kind),
			Data:    data,
			Seq:     uint64(seq),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: snapshot rows: %w", err)
	}

	var last int64
	err = j.pool.QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT COALESCE(MAX(seq), 0) FROM ledger_events),
			(SELECT COALESCE(MAX(updated_seq), 0) FROM ledger_records)
		)`).Scan(&last)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: snapshot seq: %w", err)
	}
	return entries, uint64(last), nil
}
