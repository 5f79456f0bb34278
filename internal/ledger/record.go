package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Kind names a record type. It is persisted alongside the encoded record.
type Kind string

// Record is a value stored in the ledger arena. Implementations are plain
// value types; the arena hands out copies.
type Record interface {
	RecordKind() Kind
}

// RecordEntry is the encoded form of a record, as stored by a Journal.
type RecordEntry struct {
	Address solana.PublicKey `json:"address"`
	Kind    Kind             `json:"kind"`
	Data    json.RawMessage  `json:"data"`
	Seq     uint64           `json:"seq"`
}

// Codec encodes records as JSON and decodes them back by kind.
type Codec struct {
	mu       sync.RWMutex
	decoders map[Kind]func([]byte) (Record, error)
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{decoders: make(map[Kind]func([]byte) (Record, error))}
}

// Register makes records of type T decodable under kind.
func Register[T Record](c *Codec, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[kind] = func(data []byte) (Record, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Encode marshals a record.
func (c *Codec) Encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s: %w", rec.RecordKind(), err)
	}
	return data, nil
}

// Decode unmarshals a record of the given kind.
func (c *Codec) Decode(kind Kind, data []byte) (Record, error) {
	c.mu.RLock()
	dec, ok := c.decoders[kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger: decode: unknown record kind %q", kind)
	}
	rec, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", kind, err)
	}
	return rec, nil
}
