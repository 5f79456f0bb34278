package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SolDecimals is the number of decimals of the native liquidity asset. The
// REBEL token uses the same precision.
const SolDecimals = 9

// LamportsPerSol is one whole unit of the liquidity asset.
const LamportsPerSol uint64 = 1_000_000_000

// FormatAmount renders a base-unit amount as a decimal string, e.g.
// 791000000 with 9 decimals becomes "0.791".
func FormatAmount(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}

// FormatSol is FormatAmount for the liquidity asset.
func FormatSol(amount uint64) string {
	return FormatAmount(amount, SolDecimals)
}
