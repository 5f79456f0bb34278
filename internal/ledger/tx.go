package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Tx is the unit of atomicity. Reads see committed state overlaid with the
// transaction's own writes; nothing is visible to other callers until the
// owning Update returns nil.
type Tx struct {
	ctx    context.Context
	now    int64
	base   map[solana.PublicKey]Record
	writes map[solana.PublicKey]Record
	order  []solana.PublicKey
	events []pendingEvent
	checks []func() error
}

type pendingEvent struct {
	program solana.PublicKey
	kind    EventKind
	payload json.RawMessage
}

func newTx(ctx context.Context, now int64, base map[solana.PublicKey]Record) *Tx {
	return &Tx{
		ctx:    ctx,
		now:    now,
		base:   base,
		writes: make(map[solana.PublicKey]Record),
	}
}

// Context returns the context of the enclosing operation.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Now returns the transaction timestamp in unix seconds. It is fixed for the
// lifetime of the transaction.
func (tx *Tx) Now() int64 { return tx.now }

func (tx *Tx) get(addr solana.PublicKey) (Record, bool) {
	if rec, ok := tx.writes[addr]; ok {
		return rec, true
	}
	rec, ok := tx.base[addr]
	return rec, ok
}

// Exists reports whether addr holds a record.
func (tx *Tx) Exists(addr solana.PublicKey) bool {
	_, ok := tx.get(addr)
	return ok
}

// Put stages rec at addr, replacing any previous value.
func (tx *Tx) Put(addr solana.PublicKey, rec Record) {
	if _, staged := tx.writes[addr]; !staged {
		tx.order = append(tx.order, addr)
	}
	tx.writes[addr] = rec
}

// Create stages rec at addr and fails if the address is already taken. This
// is the unique-key insertion used for singletons and vote records.
func (tx *Tx) Create(addr solana.PublicKey, rec Record) error {
	if tx.Exists(addr) {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, addr)
	}
	tx.Put(addr, rec)
	return nil
}

// Emit stages an event. It is published only if the transaction commits.
func (tx *Tx) Emit(program solana.PublicKey, kind EventKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ledger: encode %s event: %w", kind, err)
	}
	tx.events = append(tx.events, pendingEvent{program: program, kind: kind, payload: data})
	return nil
}

// BeforeCommit registers a check that runs after the operation body and
// before anything is persisted. A failing check aborts the transaction.
func (tx *Tx) BeforeCommit(check func() error) {
	tx.checks = append(tx.checks, check)
}

// Load returns the record of type T at addr.
func Load[T Record](tx *Tx, addr solana.PublicKey) (T, error) {
	var zero T
	rec, ok := tx.get(addr)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	v, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %s", ErrAccountTypeMismatch, addr, rec.RecordKind())
	}
	return v, nil
}

// Collect returns every record of type T visible to the transaction, keyed
// by address.
func Collect[T Record](tx *Tx) map[solana.PublicKey]T {
	out := make(map[solana.PublicKey]T)
	for addr, rec := range tx.base {
		if v, ok := rec.(T); ok {
			out[addr] = v
		}
	}
	for addr, rec := range tx.writes {
		if v, ok := rec.(T); ok {
			out[addr] = v
		}
	}
	return out
}
