package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// EventKind names an event type.
type EventKind string

// Event is an append-only record emitted by a committed transaction. Seq is
// assigned at commit and is strictly increasing across the ledger.
type Event struct {
	ID        uuid.UUID        `json:"id"`
	Seq       uint64           `json:"seq"`
	Kind      EventKind        `json:"kind"`
	Program   solana.PublicKey `json:"program"`
	Timestamp int64            `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

// DecodePayload unmarshals an event payload into T.
func DecodePayload[T any](e Event) (T, error) {
	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("ledger: decode %s payload: %w", e.Kind, err)
	}
	return v, nil
}

// EventSink receives events after their transaction has committed. Sinks
// cannot veto a commit; errors are logged by the ledger.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []Event) error

func (f EventSinkFunc) Publish(ctx context.Context, events []Event) error {
	return f(ctx, events)
}
