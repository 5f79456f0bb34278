package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// ExecRequest asks the node's executor to run one strategy with the
// operator identity. Requests are read from the execution request stream.
type ExecRequest struct {
	ID           string           `json:"id"`
	Strategy     solana.PublicKey `json:"strategy"`
	BorrowAmount uint64           `json:"borrow_amount"`
	MinProfit    uint64           `json:"min_profit"`
	RequestedAt  time.Time        `json:"requested_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// Expired reports whether the request may no longer run at now. A zero
// ExpiresAt never expires.
func (r ExecRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
