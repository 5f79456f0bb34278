// Package analytics builds the read models behind the leaderboard, the
// per-strategy execution history and the protocol overview. It reads the
// ledger through the program services and the event log, and optionally
// caches the aggregate views.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/domain"
	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
)

const (
	DefaultCacheTTL = 30 * time.Second

	// chartPageSize and maxChartPages bound the events read for one chart.
	chartPageSize = 500
	maxChartPages = 100

	MaxChartBuckets  = 168
	MinChartInterval = time.Minute
	MaxChartInterval = 7 * 24 * time.Hour
)

// Strategies reads the strategy registry.
type Strategies interface {
	Get(ctx context.Context, addr solana.PublicKey) (registry.Strategy, error)
	ListStrategies(ctx context.Context, f registry.ListFilter) ([]registry.Strategy, error)
	Leaderboard(ctx context.Context, limit int) ([]registry.Stats, error)
}

// Executions reads the engine's aggregates.
type Executions interface {
	Stats(ctx context.Context) (engine.StatsView, error)
	TopEarners(ctx context.Context, role engine.Role, limit int) ([]engine.Earnings, error)
	EarningsOf(ctx context.Context, role engine.Role, account solana.PublicKey) (engine.Earnings, error)
}

// Proposals lists governance proposals.
type Proposals interface {
	ListProposals(ctx context.Context) ([]governance.ProposalView, error)
}

// EventLister reads committed ledger events.
type EventLister interface {
	List(ctx context.Context, f domain.EventFilter) ([]ledger.Event, error)
}

// Options configures a Service. Cache and Now are optional.
type Options struct {
	Strategies Strategies
	Executions Executions
	Proposals  Proposals
	Events     EventLister
	Cache      domain.ResponseCache
	CacheTTL   time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Service answers analytics queries.
type Service struct {
	strategies Strategies
	executions Executions
	proposals  Proposals
	events     EventLister
	cache      domain.ResponseCache
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		strategies: opts.Strategies,
		executions: opts.Executions,
		proposals:  opts.Proposals,
		events:     opts.Events,
		cache:      opts.Cache,
		ttl:        opts.CacheTTL,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "analytics"))
	return s
}

// CreatorStats summarizes one strategy creator.
type CreatorStats struct {
	Creator            solana.PublicKey `json:"creator"`
	Strategies         int              `json:"strategies"`
	ApprovedStrategies int              `json:"approved_strategies"`
	TotalProfit        uint64           `json:"total_profit"`
	Executions         uint64           `json:"executions"`
	TotalEarned        uint64           `json:"total_earned"`
	LastExecution      int64            `json:"last_execution"`
}

// Execution is one StrategyExecuted receipt with its event sequence.
type Execution struct {
	Seq uint64 `json:"seq"`
	engine.Receipt
}

// Overview is the protocol-wide summary.
type Overview struct {
	TotalStrategies    int              `json:"total_strategies"`
	ApprovedStrategies int              `json:"approved_strategies"`
	PendingStrategies  int              `json:"pending_strategies"`
	TotalCreators      int              `json:"total_creators"`
	TotalExecutors     int              `json:"total_executors"`
	TotalProposals     int              `json:"total_proposals"`
	ActiveProposals    int              `json:"active_proposals"`
	Engine             engine.StatsView `json:"engine"`
}

// Bucket is one interval of the execution chart.
type Bucket struct {
	Start       time.Time `json:"bucket"`
	Count       uint64    `json:"count"`
	Successful  uint64    `json:"successful"`
	TotalProfit uint64    `json:"total_profit"`
}

// Leaderboard returns the top approved strategies.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]registry.Stats, error) {
	return cached(ctx, s, fmt.Sprintf("leaderboard:%d", limit), func() ([]registry.Stats, error) {
		return s.strategies.Leaderboard(ctx, limit)
	})
}

// TopCreators ranks creators by the profit shares they were paid.
func (s *Service) TopCreators(ctx context.Context, limit int) ([]CreatorStats, error) {
	return cached(ctx, s, fmt.Sprintf("leaderboard:creators:%d", limit), func() ([]CreatorStats, error) {
		earners, err := s.executions.TopEarners(ctx, engine.RoleCreator, limit)
		if err != nil {
			return nil, err
		}
		out := make([]CreatorStats, 0, len(earners))
		for _, e := range earners {
			cs, err := s.creatorStats(ctx, e.Account, e)
			if err != nil {
				return nil, err
			}
			out = append(out, cs)
		}
		return out, nil
	})
}

// Creator summarizes one creator. A key that never created a strategy fails
// with domain.ErrNotFound.
func (s *Service) Creator(ctx context.Context, creator solana.PublicKey) (CreatorStats, error) {
	e, err := s.executions.EarningsOf(ctx, engine.RoleCreator, creator)
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		return CreatorStats{}, err
	}
	cs, err := s.creatorStats(ctx, creator, e)
	if err != nil {
		return CreatorStats{}, err
	}
	if cs.Strategies == 0 {
		return CreatorStats{}, fmt.Errorf("%w: creator %s", domain.ErrNotFound, creator)
	}
	return cs, nil
}

func (s *Service) creatorStats(ctx context.Context, creator solana.PublicKey, e engine.Earnings) (CreatorStats, error) {
	strategies, err := s.strategies.ListStrategies(ctx, registry.ListFilter{Creator: creator})
	if err != nil {
		return CreatorStats{}, err
	}
	cs := CreatorStats{
		Creator:       creator,
		Strategies:    len(strategies),
		Executions:    e.Executions,
		TotalEarned:   e.TotalEarned,
		LastExecution: e.LastExecution,
	}
	for _, st := range strategies {
		if st.Status == registry.StatusApproved {
			cs.ApprovedStrategies++
		}
		if cs.TotalProfit, err = ledger.CheckedAdd(cs.TotalProfit, st.TotalProfit); err != nil {
			return CreatorStats{}, err
		}
	}
	return cs, nil
}

// Executions pages backward through a strategy's execution receipts. A zero
// beforeSeq starts at the newest.
func (s *Service) Executions(ctx context.Context, strategy solana.PublicKey, beforeSeq uint64, limit int) ([]Execution, error) {
	if _, err := s.strategies.Get(ctx, strategy); err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, domain.EventFilter{
		Kind:      engine.EventStrategyExecuted,
		Strategy:  strategy.String(),
		BeforeSeq: beforeSeq,
		Newest:    true,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: executions of %s: %w", strategy, err)
	}
	out := make([]Execution, 0, len(events))
	for _, e := range events {
		r, err := ledger.DecodePayload[engine.Receipt](e)
		if err != nil {
			return nil, fmt.Errorf("analytics: event %d: %w", e.Seq, err)
		}
		out = append(out, Execution{Seq: e.Seq, Receipt: r})
	}
	return out, nil
}

// Overview counts strategies, participants and proposals and reports the
// engine totals.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	return cached(ctx, s, "analytics:overview", func() (Overview, error) {
		var ov Overview
		strategies, err := s.strategies.ListStrategies(ctx, registry.ListFilter{})
		if err != nil {
			return ov, err
		}
		creators := make(map[solana.PublicKey]struct{})
		for _, st := range strategies {
			creators[st.Creator] = struct{}{}
			switch st.Status {
			case registry.StatusApproved:
				ov.ApprovedStrategies++
			case registry.StatusPending:
				ov.PendingStrategies++
			}
		}
		ov.TotalStrategies = len(strategies)
		ov.TotalCreators = len(creators)

		executors, err := s.executions.TopEarners(ctx, engine.RoleExecutor, 0)
		if err != nil {
			return ov, err
		}
		ov.TotalExecutors = len(executors)

		proposals, err := s.proposals.ListProposals(ctx)
		if err != nil {
			return ov, err
		}
		ov.TotalProposals = len(proposals)
		for _, p := range proposals {
			if p.Status == governance.StatusActive {
				ov.ActiveProposals++
			}
		}

		if ov.Engine, err = s.executions.Stats(ctx); err != nil {
			return ov, err
		}
		return ov, nil
	})
}

// ExecutionChart buckets executions into n intervals aligned to the unix
// epoch, newest first. The current, partial interval is the first bucket.
func (s *Service) ExecutionChart(ctx context.Context, interval time.Duration, n int) ([]Bucket, error) {
	if interval < MinChartInterval || interval > MaxChartInterval || interval%time.Second != 0 {
		return nil, fmt.Errorf("%w: interval must be whole seconds between %s and %s", domain.ErrInvalidInput, MinChartInterval, MaxChartInterval)
	}
	if n < 1 || n > MaxChartBuckets {
		return nil, fmt.Errorf("%w: buckets must be 1-%d", domain.ErrInvalidInput, MaxChartBuckets)
	}

	iv := int64(interval / time.Second)
	now := s.now().Unix()
	current := now - now%iv
	since := current - int64(n-1)*iv

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Start = time.Unix(since+int64(i)*iv, 0).UTC()
	}

	var after uint64
	for page := 0; page < maxChartPages; page++ {
		events, err := s.events.List(ctx, domain.EventFilter{
			Kind:     engine.EventStrategyExecuted,
			Since:    since,
			AfterSeq: after,
			Limit:    chartPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("analytics: execution chart: %w", err)
		}
		for _, e := range events {
			idx := (e.Timestamp - since) / iv
			if e.Timestamp < since || idx >= int64(n) {
				continue
			}
			r, err := ledger.DecodePayload[engine.Receipt](e)
			if err != nil {
				return nil, fmt.Errorf("analytics: event %d: %w", e.Seq, err)
			}
			b := &buckets[idx]
			b.Count++
			b.Successful++
			if b.TotalProfit, err = ledger.CheckedAdd(b.TotalProfit, r.NetProfit); err != nil {
				return nil, err
			}
		}
		if len(events) < chartPageSize {
			break
		}
		after = events[len(events)-1].Seq
	}

	// newest first
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		buckets[i], buckets[j] = buckets[j], buckets[i]
	}
	return buckets, nil
}

// cached serves key from the response cache, loading and storing it on a
// miss. Cache failures fall back to load.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var v T
			if json.Unmarshal(data, &v) == nil {
				return v, nil
			}
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	v, err := load()
	if err != nil || s.cache == nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return v, nil
}
