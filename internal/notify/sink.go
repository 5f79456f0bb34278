package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

type note struct {
	event   string
	title   string
	message string
}

// EventSink turns committed ledger events into notifications. Publish only
// formats and queues; Run delivers, so a slow webhook never holds up the
// ledger's sink chain. When the queue is full new notes are dropped.
type EventSink struct {
	notifier *Notifier
	queue    chan note
	logger   *slog.Logger
}

// NewEventSink creates an EventSink with room for buffer queued notes.
func NewEventSink(n *Notifier, buffer int, logger *slog.Logger) *EventSink {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		notifier: n,
		queue:    make(chan note, buffer),
		logger:   logger.With(slog.String("component", "notify_sink")),
	}
}

// Publish implements ledger.EventSink.
func (s *EventSink) Publish(ctx context.Context, events []ledger.Event) error {
	for _, e := range events {
		if !s.notifier.Allows(string(e.Kind)) {
			continue
		}
		title, msg, ok, err := Describe(e)
		if err != nil {
			s.logger.WarnContext(ctx, "undecodable event payload",
				slog.String("kind", string(e.Kind)),
				slog.Uint64("seq", e.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		select {
		case s.queue <- note{event: string(e.Kind), title: title, message: msg}:
		default:
			s.logger.WarnContext(ctx, "notification queue full, dropping",
				slog.String("kind", string(e.Kind)),
				slog.Uint64("seq", e.Seq),
			)
		}
	}
	return nil
}

// Run delivers queued notifications until ctx is cancelled.
func (s *EventSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			if err := s.notifier.Notify(ctx, n.event, n.title, n.message); err != nil {
				s.logger.WarnContext(ctx, "notification failed",
					slog.String("event", n.event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Describe renders the events worth a human's attention. ok is false for
// kinds that are not notified.
func Describe(e ledger.Event) (title, message string, ok bool, err error) {
	switch e.Kind {
	case engine.EventStrategyExecuted:
		r, err := ledger.DecodePayload[engine.Receipt](e)
		if err != nil {
			return "", "", false, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Strategy #%d `%s` (%s mode)\n", r.StrategyID, r.Strategy, r.Mode)
		fmt.Fprintf(&b, "Borrowed %s SOL, fee %s SOL\n", ledger.FormatSol(r.BorrowedAmount), ledger.FormatSol(r.FlashloanFee))
		fmt.Fprintf(&b, "Net profit %s SOL\n", ledger.FormatSol(r.NetProfit))
		fmt.Fprintf(&b, "Creator %s / Executor %s / Treasury %s SOL",
			ledger.FormatSol(r.CreatorShare), ledger.FormatSol(r.ExecutorShare), ledger.FormatSol(r.TreasuryShare))
		return "Strategy executed", b.String(), true, nil

	case governance.EventProposalExecuted:
		p, err := ledger.DecodePayload[governance.ProposalExecuted](e)
		if err != nil {
			return "", "", false, err
		}
		rebel := int32(governance.RebelDecimals)
		msg := fmt.Sprintf("Proposal #%d (%s) on `%s`\nYes %s / No %s / Abstain %s REBEL",
			p.ProposalID, p.Type, p.Target,
			ledger.FormatAmount(p.VotesYes, rebel),
			ledger.FormatAmount(p.VotesNo, rebel),
			ledger.FormatAmount(p.VotesAbstain, rebel))
		return "Proposal executed", msg, true, nil

	case governance.EventTreasurySpent:
		sp, err := ledger.DecodePayload[governance.TreasurySpent](e)
		if err != nil {
			return "", "", false, err
		}
		msg := fmt.Sprintf("Proposal #%d sent %s SOL to `%s`\nTotal spent %s SOL",
			sp.ProposalID, ledger.FormatSol(sp.Amount), sp.Recipient, ledger.FormatSol(sp.TotalSpent))
		return "Treasury spend", msg, true, nil
	}
	return "", "", false, nil
}

var _ ledger.EventSink = (*EventSink)(nil)
