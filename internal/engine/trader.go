package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
)

// Trader turns the borrowed amount held by holder into a final amount of
// the same asset. Implementations settle the difference on the ledger so
// that no value is created or destroyed.
type Trader interface {
	Trade(tx *ledger.Tx, strategy registry.Strategy, holder solana.PublicKey, amountIn uint64) (amountOut uint64, err error)
}

// VenueAddress owns the reserve that FixedRateTrader settles against.
func VenueAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("venue"))
}

// FixedRateTrader simulates a round trip at a fixed rate of
// Numerator/Denominator. Gains are paid from the venue reserve and losses
// are paid into it.
type FixedRateTrader struct {
	Mint        solana.PublicKey
	Numerator   uint64
	Denominator uint64
}

// NewFixedRateTrader returns a trader at num/den. The default rate is
// 108/100.
func NewFixedRateTrader(mint solana.PublicKey, num, den uint64) (*FixedRateTrader, error) {
	if num == 0 || den == 0 {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidExchangeRate, num, den)
	}
	return &FixedRateTrader{Mint: mint, Numerator: num, Denominator: den}, nil
}

func (t *FixedRateTrader) Trade(tx *ledger.Tx, _ registry.Strategy, holder solana.PublicKey, amountIn uint64) (uint64, error) {
	out, err := ledger.MulDiv(amountIn, t.Numerator, t.Denominator)
	if err != nil {
		return 0, err
	}
	switch {
	case out > amountIn:
		err = token.Transfer(tx, t.Mint, VenueAddress(), holder, out-amountIn)
	case out < amountIn:
		err = token.Transfer(tx, t.Mint, holder, VenueAddress(), amountIn-out)
	}
	if err != nil {
		return 0, fmt.Errorf("engine: settle trade: %w", err)
	}
	return out, nil
}

var _ Trader = (*FixedRateTrader)(nil)
