package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/protocol"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

const sol = ledger.LamportsPerSol

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk.PublicKey()
}

// fakeBus serves queued stream messages once and records reads.
type fakeBus struct {
	mu      sync.Mutex
	pending []domain.StreamMessage
	reads   []string
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = append(b.reads, lastID)
	n := min(count, len(b.pending))
	out := b.pending[:n]
	b.pending = b.pending[n:]
	return out, nil
}

type recordingAlerter struct{ titles []string }

func (a *recordingAlerter) NotifyAll(_ context.Context, title, _ string) error {
	a.titles = append(a.titles, title)
	return nil
}

type stubRunner struct{ err error }

func (s stubRunner) ExecuteStrategy(context.Context, solana.PublicKey, solana.PublicKey, uint64, uint64) (engine.Receipt, error) {
	return engine.Receipt{}, s.err
}

func message(t *testing.T, id string, req domain.ExecRequest) domain.StreamMessage {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return domain.StreamMessage{ID: id, Payload: payload}
}

type fixture struct {
	p        *protocol.Protocol
	operator solana.PublicKey
	approved solana.PublicKey
	pending  solana.PublicKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	l := ledger.New(ledger.Options{Clock: clock, Codec: protocol.NewCodec(), Logger: discard()})
	admin, creator := newKey(t), newKey(t)
	if _, err := protocol.Bootstrap(ctx, l, protocol.Params{
		Admin:            admin,
		Mode:             engine.ModePool,
		OperatorFunding:  1_000 * sol,
		InitialLiquidity: 100 * sol,
		VenueReserve:     50 * sol,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := protocol.New(l, protocol.Options{Mode: engine.ModePool, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}

	create := func() solana.PublicKey {
		s, err := p.Registry.CreateStrategy(ctx, creator, registry.CreateParams{
			Dexes:              []registry.DexType{registry.DexRaydium, registry.DexOrca},
			TokenPairs:         []registry.TokenPair{{TokenA: token.NativeMint, TokenB: newKey(t)}},
			ProfitThresholdBps: 50,
			MaxSlippageBps:     100,
		})
		if err != nil {
			t.Fatal(err)
		}
		return s.Address()
	}
	approved, pending := create(), create()
	if _, err := p.Registry.Approve(ctx, admin, approved); err != nil {
		t.Fatal(err)
	}
	return fixture{p: p, operator: newKey(t), approved: approved, pending: pending}
}

func TestHandleOutcomes(t *testing.T) {
	f := newFixture(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name string
		msg  func(t *testing.T) domain.StreamMessage
		want Outcome
	}{
		{"executes approved strategy", func(t *testing.T) domain.StreamMessage {
			return message(t, "1-0", domain.ExecRequest{ID: "a", Strategy: f.approved, BorrowAmount: 10 * sol})
		}, OutcomeExecuted},
		{"duplicate id is skipped", func(t *testing.T) domain.StreamMessage {
			return message(t, "2-0", domain.ExecRequest{ID: "a", Strategy: f.approved, BorrowAmount: 10 * sol})
		}, OutcomeDuplicate},
		{"expired request is skipped", func(t *testing.T) domain.StreamMessage {
			return message(t, "3-0", domain.ExecRequest{ID: "b", Strategy: f.approved, BorrowAmount: 10 * sol, ExpiresAt: now.Add(-time.Second)})
		}, OutcomeExpired},
		{"min profit not met is rejected", func(t *testing.T) domain.StreamMessage {
			return message(t, "4-0", domain.ExecRequest{ID: "c", Strategy: f.approved, BorrowAmount: 10 * sol, MinProfit: 5 * sol})
		}, OutcomeRejected},
		{"pending strategy is rejected", func(t *testing.T) domain.StreamMessage {
			return message(t, "5-0", domain.ExecRequest{ID: "d", Strategy: f.pending, BorrowAmount: 10 * sol})
		}, OutcomeRejected},
		{"garbage payload", func(*testing.T) domain.StreamMessage {
			return domain.StreamMessage{ID: "6-0", Payload: []byte("not json")}
		}, OutcomeMalformed},
	}

	e := NewExecutor(&fakeBus{}, f.p.Engine, f.operator, Options{}, discard())
	e.now = func() time.Time { return now }
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Handle(context.Background(), tt.msg(t)); got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
		})
	}

	stats := e.Stats()
	if stats.Executed != 1 || stats.Rejected != 2 || stats.Skipped != 3 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	st, err := f.p.Registry.Get(context.Background(), f.approved)
	if err != nil {
		t.Fatal(err)
	}
	if st.ExecutionCount != 1 {
		t.Errorf("execution count = %d, want 1", st.ExecutionCount)
	}
}

func TestHandleAlertsOnIntegrityAndInfraFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Outcome
		wantAlert bool
	}{
		{"arithmetic", ledger.ErrArithmeticOverflow, OutcomeFailed, true},
		{"infrastructure", errors.New("postgres: commit: connection reset"), OutcomeFailed, true},
		{"economic", engine.ErrSlippageExceeded, OutcomeRejected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := &recordingAlerter{}
			e := NewExecutor(&fakeBus{}, stubRunner{err: tt.err}, newKey(t), Options{}, discard())
			e.SetAlerter(alerts)

			got := e.Handle(context.Background(), message(t, "1-0", domain.ExecRequest{ID: "x", Strategy: newKey(t), BorrowAmount: sol}))
			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if (len(alerts.titles) > 0) != tt.wantAlert {
				t.Errorf("alerts = %v, wantAlert %v", alerts.titles, tt.wantAlert)
			}
			if e.Stats().LastError == "" {
				t.Error("last error not recorded")
			}
		})
	}
}

func TestRunAdvancesStreamCursor(t *testing.T) {
	f := newFixture(t)
	bus := &fakeBus{pending: []domain.StreamMessage{
		message(t, "100-0", domain.ExecRequest{ID: "r1", Strategy: f.approved, BorrowAmount: 10 * sol}),
		message(t, "101-0", domain.ExecRequest{ID: "r2", Strategy: f.approved, BorrowAmount: 5 * sol}),
	}}
	e := NewExecutor(bus, f.p.Engine, f.operator, Options{StartID: "99-0", PollInterval: 5 * time.Millisecond}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for e.Stats().Executed < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("stats = %+v", e.Stats())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if e.LastID() != "101-0" {
		t.Errorf("last id = %q, want 101-0", e.LastID())
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.reads[0] != "99-0" {
		t.Errorf("first read after %q, want 99-0", bus.reads[0])
	}
}

func TestDedupExpires(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second sighting not reported")
	}
	now = now.Add(time.Minute)
	d.Cleanup()
	if d.Len() != 0 {
		t.Errorf("len after cleanup = %d", d.Len())
	}
	if d.IsDuplicate("a") {
		t.Error("expired id still reported as duplicate")
	}
}
