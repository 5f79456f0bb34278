package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/protocol"
	"github.com/alanyoungcy/mevrebels/internal/registry"
)

const (
	sol   = ledger.LamportsPerSol
	start = int64(1_700_000_000)
	net   = uint64(791_000_000)
	share = uint64(316_400_000)
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk.PublicKey()
}

// tail filters the ledger's in-memory events the way the event store does.
type tail struct{ l *ledger.Ledger }

func (t tail) List(_ context.Context, f domain.EventFilter) ([]ledger.Event, error) {
	events := t.l.RecentEvents(0)
	if f.Newest {
		slices.Reverse(events)
	}
	var out []ledger.Event
	for _, e := range events {
		if e.Seq <= f.AfterSeq || (f.BeforeSeq > 0 && e.Seq >= f.BeforeSeq) {
			continue
		}
		if (f.Kind != "" && e.Kind != f.Kind) || e.Timestamp < f.Since {
			continue
		}
		if f.Strategy != "" {
			r, err := ledger.DecodePayload[engine.Receipt](e)
			if err != nil || r.Strategy.String() != f.Strategy {
				continue
			}
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

type fixture struct {
	p        *protocol.Protocol
	clock    *ledger.ManualClock
	svc      *Service
	admin    solana.PublicKey
	executor solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := ledger.NewManualClock(time.Unix(start, 0))
	l := ledger.New(ledger.Options{Clock: clock, Codec: protocol.NewCodec(), Logger: discard()})
	admin := newKey(t)
	if _, err := protocol.Bootstrap(ctx, l, protocol.Params{
		Admin:            admin,
		Mode:             engine.ModePool,
		OperatorFunding:  500 * sol,
		InitialLiquidity: 100 * sol,
		VenueReserve:     50 * sol,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := protocol.New(l, protocol.Options{Mode: engine.ModePool, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		p:     p,
		clock: clock,
		svc: New(Options{
			Strategies: p.Registry,
			Executions: p.Engine,
			Proposals:  p.Governance,
			Events:     tail{l},
			Now:        clock.Now,
			Logger:     discard(),
		}),
		admin:    admin,
		executor: newKey(t),
	}
}

func (f *fixture) strategy(t *testing.T, creator solana.PublicKey, approve bool) solana.PublicKey {
	t.Helper()
	ctx := context.Background()
	s, err := f.p.Registry.CreateStrategy(ctx, creator, registry.CreateParams{
		Dexes:              []registry.DexType{registry.DexRaydium},
		TokenPairs:         []registry.TokenPair{{TokenA: newKey(t), TokenB: newKey(t)}},
		ProfitThresholdBps: 50,
		MaxSlippageBps:     100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if approve {
		if _, err := f.p.Registry.Approve(ctx, f.admin, s.Address()); err != nil {
			t.Fatal(err)
		}
	}
	return s.Address()
}

func (f *fixture) execute(t *testing.T, strategy solana.PublicKey) {
	t.Helper()
	if _, err := f.p.Engine.ExecuteStrategy(context.Background(), f.executor, strategy, 10*sol, 0); err != nil {
		t.Fatal(err)
	}
}

func TestLeaderboardAndCreators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	earner, idle := newKey(t), newKey(t)
	top := f.strategy(t, earner, true)
	quiet := f.strategy(t, idle, true)
	f.strategy(t, idle, false)
	f.execute(t, top)
	f.execute(t, top)

	board, err := f.svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 2 || !board[0].Strategy.Equals(top) || !board[1].Strategy.Equals(quiet) {
		t.Fatalf("leaderboard = %+v", board)
	}
	if board[0].TotalProfit != 2*net || board[0].ExecutionCount != 2 {
		t.Errorf("top entry = %+v", board[0])
	}

	creators, err := f.svc.TopCreators(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := CreatorStats{
		Creator:            earner,
		Strategies:         1,
		ApprovedStrategies: 1,
		TotalProfit:        2 * net,
		Executions:         2,
		TotalEarned:        2 * share,
		LastExecution:      start,
	}
	if len(creators) != 1 || creators[0] != want {
		t.Errorf("creators = %+v, want [%+v]", creators, want)
	}

	got, err := f.svc.Creator(ctx, idle)
	if err != nil {
		t.Fatal(err)
	}
	if got.Strategies != 2 || got.ApprovedStrategies != 1 || got.TotalEarned != 0 {
		t.Errorf("idle creator = %+v", got)
	}

	if _, err := f.svc.Creator(ctx, newKey(t)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown creator: err = %v", err)
	}
}

func TestExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.strategy(t, newKey(t), true)
	b := f.strategy(t, newKey(t), true)
	f.execute(t, a)
	f.clock.Advance(time.Minute)
	f.execute(t, b)
	f.execute(t, a)

	execs, err := f.svc.Executions(ctx, a, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 2 {
		t.Fatalf("got %d executions, want 2", len(execs))
	}
	if execs[0].Seq <= execs[1].Seq || execs[0].Timestamp != start+60 || execs[1].Timestamp != start {
		t.Errorf("order = %+v", execs)
	}
	for _, e := range execs {
		if !e.Strategy.Equals(a) || e.NetProfit != net {
			t.Errorf("execution = %+v", e)
		}
	}

	older, err := f.svc.Executions(ctx, a, execs[0].Seq, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].Seq != execs[1].Seq {
		t.Errorf("page before %d = %+v", execs[0].Seq, older)
	}

	if _, err := f.svc.Executions(ctx, newKey(t), 0, 10); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("unknown strategy: err = %v", err)
	}
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := newKey(t)
	s := f.strategy(t, creator, true)
	f.strategy(t, creator, false)
	f.strategy(t, newKey(t), false)
	f.execute(t, s)

	ov, err := f.svc.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ov.TotalStrategies != 3 || ov.ApprovedStrategies != 1 || ov.PendingStrategies != 2 {
		t.Errorf("strategy counts = %+v", ov)
	}
	if ov.TotalCreators != 2 || ov.TotalExecutors != 1 {
		t.Errorf("participants = %d creators, %d executors", ov.TotalCreators, ov.TotalExecutors)
	}
	if ov.TotalProposals != 0 || ov.ActiveProposals != 0 {
		t.Errorf("proposals = %d/%d", ov.ActiveProposals, ov.TotalProposals)
	}
	if ov.Engine.TotalExecutions != 1 || ov.Engine.TotalNetProfit != net {
		t.Errorf("engine = %+v", ov.Engine)
	}
}

// fakeEvents serves a fixed event list, honoring the forward-paging filter.
type fakeEvents []ledger.Event

func (fe fakeEvents) List(_ context.Context, f domain.EventFilter) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, e := range fe {
		if e.Seq > f.AfterSeq && e.Timestamp >= f.Since && e.Kind == f.Kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func executed(t *testing.T, seq uint64, ts int64, profit uint64) ledger.Event {
	t.Helper()
	payload, err := json.Marshal(engine.Receipt{NetProfit: profit, Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	return ledger.Event{Seq: seq, Kind: engine.EventStrategyExecuted, Timestamp: ts, Payload: payload}
}

func TestExecutionChart(t *testing.T) {
	// now is 30 minutes into an hour
	hour := int64(3600)
	now := start - start%hour + 1800
	current := now - 1800

	svc := New(Options{
		Events: fakeEvents{
			executed(t, 1, current-3*hour, 5),     // before the window
			executed(t, 2, current-2*hour, 10),    // oldest bucket
			executed(t, 3, current-hour+59, 20),   // middle bucket
			executed(t, 4, current-hour+3599, 30), // middle bucket, last second
			executed(t, 5, current+10, 40),        // current bucket
			{Seq: 6, Kind: "VoteCast", Timestamp: current + 20},
		},
		Now:    func() time.Time { return time.Unix(now, 0) },
		Logger: discard(),
	})

	buckets, err := svc.ExecutionChart(context.Background(), time.Hour, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		start  int64
		count  uint64
		profit uint64
	}{
		{current, 1, 40},
		{current - hour, 2, 50},
		{current - 2*hour, 1, 10},
	}
	if len(buckets) != len(want) {
		t.Fatalf("got %d buckets", len(buckets))
	}
	for i, w := range want {
		b := buckets[i]
		if b.Start.Unix() != w.start || b.Count != w.count || b.Successful != w.count || b.TotalProfit != w.profit {
			t.Errorf("bucket %d = %+v, want start %d count %d profit %d", i, b, w.start, w.count, w.profit)
		}
	}

	bad := []struct {
		name     string
		interval time.Duration
		n        int
	}{
		{"interval too short", time.Second, 3},
		{"interval too long", 8 * 24 * time.Hour, 3},
		{"fractional interval", time.Minute + time.Millisecond, 3},
		{"no buckets", time.Hour, 0},
		{"too many buckets", time.Hour, MaxChartBuckets + 1},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ExecutionChart(context.Background(), tt.interval, tt.n); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want invalid input", err)
			}
		})
	}
}

type memCache struct {
	data    map[string][]byte
	readErr error
	sets    int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	c.sets++
	return nil
}

// countingStrategies counts leaderboard loads.
type countingStrategies struct {
	Strategies
	loads int
}

func (c *countingStrategies) Leaderboard(context.Context, int) ([]registry.Stats, error) {
	c.loads++
	return []registry.Stats{{ID: 7, TotalProfit: 42, Status: registry.StatusApproved}}, nil
}

func TestCachedViews(t *testing.T) {
	ctx := context.Background()
	strategies := &countingStrategies{}
	cache := &memCache{data: map[string][]byte{}}
	svc := New(Options{Strategies: strategies, Cache: cache, Logger: discard()})

	for i := 0; i < 2; i++ {
		board, err := svc.Leaderboard(ctx, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(board) != 1 || board[0].ID != 7 || board[0].Status != registry.StatusApproved {
			t.Fatalf("board = %+v", board)
		}
	}
	if strategies.loads != 1 || cache.sets != 1 {
		t.Errorf("loads = %d, sets = %d; want 1 each", strategies.loads, cache.sets)
	}
	if _, ok := cache.data["leaderboard:5"]; !ok {
		t.Errorf("cache keys = %v", cache.data)
	}

	cache.readErr = errors.New("redis down")
	if _, err := svc.Leaderboard(ctx, 5); err != nil {
		t.Fatalf("cache failure surfaced: %v", err)
	}
	if strategies.loads != 2 {
		t.Errorf("loads = %d, want fallback load", strategies.loads)
	}
}

var _ Proposals = (*governance.Service)(nil)
