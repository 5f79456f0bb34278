package registry

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// ProgramID owns AdminConfig and every StrategyRecord.
var ProgramID = solana.MustPublicKeyFromBase58("6JSrB5FXwC9WxPsY1s7w1wnK51TzjX4mwQ9PEiTUzxC1")

const (
	MinProfitThresholdBps = 10
	MaxSlippageBps        = 500
	MaxDexes              = 5
	MaxTokenPairs         = 3
)

const (
	KindAdminConfig ledger.Kind = "registry.admin_config"
	KindStrategy    ledger.Kind = "registry.strategy"
)

// DexType is a venue a strategy may route through.
type DexType uint8

const (
	DexRaydium DexType = iota + 1
	DexOrca
	DexMeteora
	DexPhoenix
	DexLifinity
)

var dexNames = map[DexType]string{
	DexRaydium:  "raydium",
	DexOrca:     "orca",
	DexMeteora:  "meteora",
	DexPhoenix:  "phoenix",
	DexLifinity: "lifinity",
}

func (d DexType) String() string {
	if n, ok := dexNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dex(%d)", uint8(d))
}

// ParseDexType maps a venue name to its DexType.
func ParseDexType(s string) (DexType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, n := range dexNames {
		if n == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDexType, s)
}

func (d DexType) MarshalText() ([]byte, error) {
	if _, ok := dexNames[d]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDexType, uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *DexType) UnmarshalText(b []byte) error {
	v, err := ParseDexType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Status is the approval state of a strategy.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusApproved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus maps a status name to its Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	}
	return 0, fmt.Errorf("registry: unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TokenPair is an ordered pair of mints a strategy trades.
type TokenPair struct {
	TokenA solana.PublicKey `json:"token_a"`
	TokenB solana.PublicKey `json:"token_b"`
}

// AdminConfig is the registry singleton.
type AdminConfig struct {
	Admin          solana.PublicKey `json:"admin"`
	Governance     solana.PublicKey `json:"governance"`
	NextStrategyID uint64           `json:"next_strategy_id"`
}

func (AdminConfig) RecordKind() ledger.Kind { return KindAdminConfig }

// CanApprove reports whether caller may approve or reject strategies.
func (c AdminConfig) CanApprove(caller solana.PublicKey) bool {
	if caller.Equals(c.Admin) {
		return true
	}
	return !c.Governance.IsZero() && caller.Equals(c.Governance)
}

// Strategy is a registered arbitrage strategy and its execution metrics.
type Strategy struct {
	Creator            solana.PublicKey `json:"creator"`
	ID                 uint64           `json:"id"`
	Dexes              []DexType        `json:"dexes"`
	TokenPairs         []TokenPair      `json:"token_pairs"`
	ProfitThresholdBps uint16           `json:"profit_threshold_bps"`
	MaxSlippageBps     uint16           `json:"max_slippage_bps"`
	Status             Status           `json:"status"`
	TotalProfit        uint64           `json:"total_profit"`
	ExecutionCount     uint64           `json:"execution_count"`
	SuccessCount       uint64           `json:"success_count"`
	CreatedAt          int64            `json:"created_at"`
	LastExecution      int64            `json:"last_execution"`
}

func (Strategy) RecordKind() ledger.Kind { return KindStrategy }

// Address is the record address of the strategy.
func (s Strategy) Address() solana.PublicKey {
	return StrategyAddress(s.Creator, s.ID)
}

// IsExecutable is true only for approved strategies.
func (s Strategy) IsExecutable() bool {
	return s.Status == StatusApproved
}

// SuccessRate is the integer percentage of successful executions.
func (s Strategy) SuccessRate() uint64 {
	if s.ExecutionCount == 0 {
		return 0
	}
	rate, err := ledger.MulDiv(s.SuccessCount, 100, s.ExecutionCount)
	if err != nil {
		return 0
	}
	return rate
}

// Stats is the read-only summary of a strategy's performance.
type Stats struct {
	Strategy       solana.PublicKey `json:"strategy"`
	ID             uint64           `json:"id"`
	Creator        solana.PublicKey `json:"creator"`
	TotalProfit    uint64           `json:"total_profit"`
	ExecutionCount uint64           `json:"execution_count"`
	SuccessCount   uint64           `json:"success_count"`
	SuccessRate    uint64           `json:"success_rate"`
	LastExecution  int64            `json:"last_execution"`
	Status         Status           `json:"status"`
}

// Stats summarizes the strategy.
func (s Strategy) Stats() Stats {
	return Stats{
		Strategy:       s.Address(),
		ID:             s.ID,
		Creator:        s.Creator,
		TotalProfit:    s.TotalProfit,
		ExecutionCount: s.ExecutionCount,
		SuccessCount:   s.SuccessCount,
		SuccessRate:    s.SuccessRate(),
		LastExecution:  s.LastExecution,
		Status:         s.Status,
	}
}

// AdminConfigAddress is the address of the registry singleton.
func AdminConfigAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("config"))
}

// StrategyAddress derives the record address of a strategy.
func StrategyAddress(creator solana.PublicKey, id uint64) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("strategy"), creator.Bytes(), ledger.U64Seed(id))
}

// RegisterRecords adds the registry record kinds to a codec.
func RegisterRecords(c *ledger.Codec) {
	ledger.Register[AdminConfig](c, KindAdminConfig)
	ledger.Register[Strategy](c, KindStrategy)
}
