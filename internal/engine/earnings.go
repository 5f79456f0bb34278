package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const KindEarnings ledger.Kind = "engine.earnings"

// Role is the side of an execution an account was paid for.
type Role string

const (
	RoleCreator  Role = "creator"
	RoleExecutor Role = "executor"
)

var errUnknownRole = errors.New("engine: unknown earnings role")

// Earnings accumulates the profit shares paid to one account in one role.
type Earnings struct {
	Account       solana.PublicKey `json:"account"`
	Role          Role             `json:"role"`
	Executions    uint64           `json:"executions"`
	TotalEarned   uint64           `json:"total_earned"`
	LastExecution int64            `json:"last_execution"`
}

func (Earnings) RecordKind() ledger.Kind { return KindEarnings }

// EarningsAddress is the per-account earnings record for role.
func EarningsAddress(role Role, account solana.PublicKey) solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("earnings"), []byte(role), account.Bytes())
}

// creditTx adds one paid execution to account's earnings, creating the
// record on first payment.
func creditTx(tx *ledger.Tx, role Role, account solana.PublicKey, amount uint64) error {
	addr := EarningsAddress(role, account)
	e, err := ledger.Load[Earnings](tx, addr)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		e = Earnings{Account: account, Role: role}
	case err != nil:
		return err
	}
	if e.TotalEarned, err = ledger.CheckedAdd(e.TotalEarned, amount); err != nil {
		return err
	}
	if e.Executions, err = ledger.CheckedInc(e.Executions); err != nil {
		return err
	}
	e.LastExecution = tx.Now()
	tx.Put(addr, e)
	return nil
}

// RankEarningsTx returns the role's earners by total earned, highest first.
// limit <= 0 returns all of them.
func RankEarningsTx(tx *ledger.Tx, role Role, limit int) []Earnings {
	var out []Earnings
	for _, e := range ledger.Collect[Earnings](tx) {
		if e.Role == role {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalEarned != out[j].TotalEarned {
			return out[i].TotalEarned > out[j].TotalEarned
		}
		return out[i].Account.String() < out[j].Account.String()
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// TopEarners ranks the accounts paid in role.
func (e *Engine) TopEarners(ctx context.Context, role Role, limit int) ([]Earnings, error) {
	if role != RoleCreator && role != RoleExecutor {
		return nil, fmt.Errorf("%w: %q", errUnknownRole, role)
	}
	var out []Earnings
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = RankEarningsTx(tx, role, limit)
		return nil
	})
	return out, err
}

// EarningsOf returns account's earnings in role. An account that was never
// paid fails with AccountNotFound.
func (e *Engine) EarningsOf(ctx context.Context, role Role, account solana.PublicKey) (Earnings, error) {
	var out Earnings
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = ledger.Load[Earnings](tx, EarningsAddress(role, account))
		return err
	})
	return out, err
}
