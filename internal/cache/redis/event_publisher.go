package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const (
	// EventStream holds every committed ledger event.
	EventStream = "rebel:events"
	// EventChannelPattern matches the per-kind pub/sub channels.
	EventChannelPattern = "ch:events:*"
)

// EventChannel is the pub/sub channel for events of kind.
func EventChannel(kind ledger.EventKind) string {
	return "ch:events:" + string(kind)
}

// EventPublisher is a ledger.EventSink that fans committed events out to the
// durable event stream and to per-kind pub/sub channels.
type EventPublisher struct {
	rdb *redis.Client
}

// NewEventPublisher creates an EventPublisher backed by the given Client.
func NewEventPublisher(c *Client) *EventPublisher {
	return &EventPublisher{rdb: c.Underlying()}
}

// Publish writes all events in one pipeline, preserving their order.
func (p *EventPublisher) Publish(ctx context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal event %d: %w", e.Seq, err)
			}
			pipe.XAdd(ctx, xaddArgs(EventStream, data))
			pipe.Publish(ctx, EventChannel(e.Kind), data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %d events from seq %d: %w", len(events), events[0].Seq, err)
	}
	return nil
}

var _ ledger.EventSink = (*EventPublisher)(nil)
