package registry

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const (
	EventStrategyCreated  ledger.EventKind = "StrategyCreated"
	EventStrategyApproved ledger.EventKind = "StrategyApproved"
	EventStrategyRejected ledger.EventKind = "StrategyRejected"
	EventAdminRotated     ledger.EventKind = "AdminRotated"
)

type StrategyCreated struct {
	Strategy           solana.PublicKey `json:"strategy"`
	StrategyID         uint64           `json:"strategy_id"`
	Creator            solana.PublicKey `json:"creator"`
	Dexes              []DexType        `json:"dexes"`
	TokenPairs         []TokenPair      `json:"token_pairs"`
	ProfitThresholdBps uint16           `json:"profit_threshold_bps"`
	MaxSlippageBps     uint16           `json:"max_slippage_bps"`
	Timestamp          int64            `json:"timestamp"`
}

// StrategyDecided is the payload of both StrategyApproved and
// StrategyRejected.
type StrategyDecided struct {
	Strategy   solana.PublicKey `json:"strategy"`
	StrategyID uint64           `json:"strategy_id"`
	Creator    solana.PublicKey `json:"creator"`
	Authority  solana.PublicKey `json:"authority"`
	Timestamp  int64            `json:"timestamp"`
}

type AdminRotated struct {
	Previous   solana.PublicKey `json:"previous"`
	Admin      solana.PublicKey `json:"admin"`
	Governance solana.PublicKey `json:"governance"`
	Timestamp  int64            `json:"timestamp"`
}
