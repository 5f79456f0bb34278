// Package registry is the Strategy Registry program. It validates new
// strategies, runs the Pending → Approved | Rejected state machine, and
// accumulates execution metrics reported by the orchestrator.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// CreateParams are the caller-supplied fields of a new strategy.
type CreateParams struct {
	Dexes              []DexType   `json:"dexes"`
	TokenPairs         []TokenPair `json:"token_pairs"`
	ProfitThresholdBps uint16      `json:"profit_threshold_bps"`
	MaxSlippageBps     uint16      `json:"max_slippage_bps"`
}

// Validate checks params in the order the program reports errors.
func (p CreateParams) Validate() error {
	if p.ProfitThresholdBps < MinProfitThresholdBps {
		return fmt.Errorf("%w: got %d", ErrProfitThresholdTooLow, p.ProfitThresholdBps)
	}
	if p.MaxSlippageBps > MaxSlippageBps {
		return fmt.Errorf("%w: got %d", ErrSlippageTooHigh, p.MaxSlippageBps)
	}
	if len(p.Dexes) == 0 {
		return ErrNoDexSpecified
	}
	if len(p.TokenPairs) == 0 {
		return ErrNoTokenPairSpecified
	}
	for _, pair := range p.TokenPairs {
		if pair.TokenA.Equals(pair.TokenB) {
			return fmt.Errorf("%w: %s", ErrInvalidTokenPair, pair.TokenA)
		}
	}
	if len(p.Dexes) > MaxDexes {
		return fmt.Errorf("%w: got %d", ErrTooManyDexes, len(p.Dexes))
	}
	if len(p.TokenPairs) > MaxTokenPairs {
		return fmt.Errorf("%w: got %d", ErrTooManyTokenPairs, len(p.TokenPairs))
	}
	for _, d := range p.Dexes {
		if _, ok := dexNames[d]; !ok {
			return fmt.Errorf("%w: %d", ErrInvalidDexType, uint8(d))
		}
	}
	return nil
}

// InitializeAdminTx creates the AdminConfig singleton.
func InitializeAdminTx(tx *ledger.Tx, admin, governance solana.PublicKey) error {
	return tx.Create(AdminConfigAddress(), AdminConfig{Admin: admin, Governance: governance})
}

// LoadAdminConfig returns the AdminConfig singleton.
func LoadAdminConfig(tx *ledger.Tx) (AdminConfig, error) {
	return ledger.Load[AdminConfig](tx, AdminConfigAddress())
}

// LoadStrategy returns the strategy stored at addr.
func LoadStrategy(tx *ledger.Tx, addr solana.PublicKey) (Strategy, error) {
	return ledger.Load[Strategy](tx, addr)
}

// CreateStrategyTx validates params, allocates the next strategy id, and
// stores the strategy as Pending.
func CreateStrategyTx(tx *ledger.Tx, creator solana.PublicKey, params CreateParams) (Strategy, error) {
	if err := params.Validate(); err != nil {
		return Strategy{}, err
	}
	cfg, err := LoadAdminConfig(tx)
	if err != nil {
		return Strategy{}, err
	}
	id := cfg.NextStrategyID
	if cfg.NextStrategyID, err = ledger.CheckedInc(id); err != nil {
		return Strategy{}, ErrStrategyIDOverflow
	}

	s := Strategy{
		Creator:            creator,
		ID:                 id,
		Dexes:              append([]DexType(nil), params.Dexes...),
		TokenPairs:         append([]TokenPair(nil), params.TokenPairs...),
		ProfitThresholdBps: params.ProfitThresholdBps,
		MaxSlippageBps:     params.MaxSlippageBps,
		Status:             StatusPending,
		CreatedAt:          tx.Now(),
	}
	addr := s.Address()
	if err := tx.Create(addr, s); err != nil {
		return Strategy{}, err
	}
	tx.Put(AdminConfigAddress(), cfg)

	return s, tx.Emit(ProgramID, EventStrategyCreated, StrategyCreated{
		Strategy:           addr,
		StrategyID:         id,
		Creator:            creator,
		Dexes:              s.Dexes,
		TokenPairs:         s.TokenPairs,
		ProfitThresholdBps: s.ProfitThresholdBps,
		MaxSlippageBps:     s.MaxSlippageBps,
		Timestamp:          tx.Now(),
	})
}

// ApproveTx moves a Pending strategy to Approved. caller must be the admin or
// the governance authority.
func ApproveTx(tx *ledger.Tx, caller, addr solana.PublicKey) (Strategy, error) {
	s, err := transition(tx, caller, addr, StatusApproved)
	if err != nil {
		return Strategy{}, err
	}
	return s, tx.Emit(ProgramID, EventStrategyApproved, StrategyDecided{
		Strategy:   addr,
		StrategyID: s.ID,
		Creator:    s.Creator,
		Authority:  caller,
		Timestamp:  tx.Now(),
	})
}

// RejectTx moves a Pending strategy to Rejected.
func RejectTx(tx *ledger.Tx, caller, addr solana.PublicKey) (Strategy, error) {
	s, err := transition(tx, caller, addr, StatusRejected)
	if err != nil {
		return Strategy{}, err
	}
	return s, tx.Emit(ProgramID, EventStrategyRejected, StrategyDecided{
		Strategy:   addr,
		StrategyID: s.ID,
		Creator:    s.Creator,
		Authority:  caller,
		Timestamp:  tx.Now(),
	})
}

func transition(tx *ledger.Tx, caller, addr solana.PublicKey, to Status) (Strategy, error) {
	cfg, err := LoadAdminConfig(tx)
	if err != nil {
		return Strategy{}, err
	}
	if !cfg.CanApprove(caller) {
		return Strategy{}, fmt.Errorf("%w: %s", ErrUnauthorizedApprover, caller)
	}
	s, err := LoadStrategy(tx, addr)
	if err != nil {
		return Strategy{}, err
	}
	if s.Status != StatusPending {
		return Strategy{}, fmt.Errorf("%w: strategy %d is %s", ErrInvalidStatus, s.ID, s.Status)
	}
	s.Status = to
	tx.Put(addr, s)
	return s, nil
}

// RecordExecutionTx accumulates the outcome of one execution. Only the
// orchestrator calls it, inside the execution transaction.
func RecordExecutionTx(tx *ledger.Tx, addr solana.PublicKey, profit uint64, success bool) (Strategy, error) {
	s, err := LoadStrategy(tx, addr)
	if err != nil {
		return Strategy{}, err
	}
	if !s.IsExecutable() {
		return Strategy{}, fmt.Errorf("%w: strategy %d is %s", ErrStrategyNotApproved, s.ID, s.Status)
	}
	if s.ExecutionCount, err = ledger.CheckedInc(s.ExecutionCount); err != nil {
		return Strategy{}, err
	}
	if success {
		if s.SuccessCount, err = ledger.CheckedInc(s.SuccessCount); err != nil {
			return Strategy{}, err
		}
		if s.TotalProfit, err = ledger.CheckedAdd(s.TotalProfit, profit); err != nil {
			return Strategy{}, err
		}
	}
	s.LastExecution = tx.Now()
	tx.Put(addr, s)
	return s, nil
}

// RotateAdminTx replaces the admin. Only the current admin may call it.
func RotateAdminTx(tx *ledger.Tx, caller, newAdmin solana.PublicKey) (AdminConfig, error) {
	return updateAdmin(tx, caller, func(cfg *AdminConfig) { cfg.Admin = newAdmin })
}

// SetGovernanceAuthorityTx replaces the governance authority. Only the admin
// may call it.
func SetGovernanceAuthorityTx(tx *ledger.Tx, caller, governance solana.PublicKey) (AdminConfig, error) {
	return updateAdmin(tx, caller, func(cfg *AdminConfig) { cfg.Governance = governance })
}

func updateAdmin(tx *ledger.Tx, caller solana.PublicKey, mutate func(*AdminConfig)) (AdminConfig, error) {
	cfg, err := LoadAdminConfig(tx)
	if err != nil {
		return AdminConfig{}, err
	}
	if !caller.Equals(cfg.Admin) {
		return AdminConfig{}, fmt.Errorf("%w: %s", ErrUnauthorizedAdmin, caller)
	}
	previous := cfg.Admin
	mutate(&cfg)
	tx.Put(AdminConfigAddress(), cfg)
	return cfg, tx.Emit(ProgramID, EventAdminRotated, AdminRotated{
		Previous:   previous,
		Admin:      cfg.Admin,
		Governance: cfg.Governance,
		Timestamp:  tx.Now(),
	})
}

// ListFilter narrows ListStrategies. Zero values match everything.
type ListFilter struct {
	Creator solana.PublicKey
	Status  Status
	Limit   int
	Offset  int
}

// ListStrategiesTx returns strategies ordered by id.
func ListStrategiesTx(tx *ledger.Tx, f ListFilter) []Strategy {
	all := ledger.Collect[Strategy](tx)
	out := make([]Strategy, 0, len(all))
	for _, s := range all {
		if !f.Creator.IsZero() && !s.Creator.Equals(f.Creator) {
			continue
		}
		if f.Status != 0 && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// LeaderboardTx ranks approved strategies by total profit, then success
// rate, then age. limit <= 0 returns every approved strategy.
func LeaderboardTx(tx *ledger.Tx, limit int) []Stats {
	approved := ListStrategiesTx(tx, ListFilter{Status: StatusApproved})
	out := make([]Stats, 0, len(approved))
	for _, s := range approved {
		out = append(out, s.Stats())
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalProfit != b.TotalProfit {
			return a.TotalProfit > b.TotalProfit
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.ID < b.ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Registry exposes the registry operations as standalone ledger
// transactions.
type Registry struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// New creates a Registry over l.
func New(l *ledger.Ledger, logger *slog.Logger) *Registry {
	return &Registry{
		ledger: l,
		logger: logger.With(slog.String("component", "registry")),
	}
}

// InitializeAdmin creates the AdminConfig singleton.
func (r *Registry) InitializeAdmin(ctx context.Context, admin, governance solana.PublicKey) error {
	return r.ledger.Update(ctx, func(tx *ledger.Tx) error {
		return InitializeAdminTx(tx, admin, governance)
	})
}

// CreateStrategy registers a new Pending strategy for creator.
func (r *Registry) CreateStrategy(ctx context.Context, creator solana.PublicKey, params CreateParams) (Strategy, error) {
	var s Strategy
	err := r.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		s, err = CreateStrategyTx(tx, creator, params)
		return err
	})
	if err != nil {
		return Strategy{}, err
	}
	r.logger.InfoContext(ctx, "strategy created",
		slog.String("strategy", s.Address().String()),
		slog.Uint64("id", s.ID),
		slog.String("creator", creator.String()),
	)
	return s, nil
}

// Approve approves a Pending strategy.
func (r *Registry) Approve(ctx context.Context, caller, addr solana.PublicKey) (Strategy, error) {
	return r.decide(ctx, caller, addr, ApproveTx)
}

// Reject rejects a Pending strategy.
func (r *Registry) Reject(ctx context.Context, caller, addr solana.PublicKey) (Strategy, error) {
	return r.decide(ctx, caller, addr, RejectTx)
}

func (r *Registry) decide(
	ctx context.Context,
	caller, addr solana.PublicKey,
	op func(*ledger.Tx, solana.PublicKey, solana.PublicKey) (Strategy, error),
) (Strategy, error) {
	var s Strategy
	err := r.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		s, err = op(tx, caller, addr)
		return err
	})
	if err != nil {
		return Strategy{}, err
	}
	r.logger.InfoContext(ctx, "strategy decided",
		slog.String("strategy", addr.String()),
		slog.String("status", s.Status.String()),
		slog.String("authority", caller.String()),
	)
	return s, nil
}

// RotateAdmin replaces the registry admin.
func (r *Registry) RotateAdmin(ctx context.Context, caller, newAdmin solana.PublicKey) (AdminConfig, error) {
	var cfg AdminConfig
	err := r.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = RotateAdminTx(tx, caller, newAdmin)
		return err
	})
	return cfg, err
}

// SetGovernanceAuthority replaces the governance authority.
func (r *Registry) SetGovernanceAuthority(ctx context.Context, caller, governance solana.PublicKey) (AdminConfig, error) {
	var cfg AdminConfig
	err := r.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = SetGovernanceAuthorityTx(tx, caller, governance)
		return err
	})
	return cfg, err
}

// AdminConfig returns the registry singleton.
func (r *Registry) AdminConfig(ctx context.Context) (AdminConfig, error) {
	var cfg AdminConfig
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = LoadAdminConfig(tx)
		return err
	})
	return cfg, err
}

// Get returns the strategy at addr.
func (r *Registry) Get(ctx context.Context, addr solana.PublicKey) (Strategy, error) {
	var s Strategy
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		s, err = LoadStrategy(tx, addr)
		return err
	})
	return s, err
}

// Stats returns the performance summary of the strategy at addr.
func (r *Registry) Stats(ctx context.Context, addr solana.PublicKey) (Stats, error) {
	s, err := r.Get(ctx, addr)
	if err != nil {
		return Stats{}, err
	}
	return s.Stats(), nil
}

// ListStrategies returns the strategies matching f.
func (r *Registry) ListStrategies(ctx context.Context, f ListFilter) ([]Strategy, error) {
	var out []Strategy
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = ListStrategiesTx(tx, f)
		return nil
	})
	return out, err
}

// Leaderboard returns the top approved strategies.
func (r *Registry) Leaderboard(ctx context.Context, limit int) ([]Stats, error) {
	var out []Stats
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = LeaderboardTx(tx, limit)
		return nil
	})
	return out, err
}
