package ledger

import (
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale used by every fee and share.
const BpsDenominator = 10_000

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	v, overflow := gethmath.SafeAdd(a, b)
	if overflow {
		return 0, ErrArithmeticOverflow
	}
	return v, nil
}

// CheckedSub returns a-b or ErrArithmeticUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	v, underflow := gethmath.SafeSub(a, b)
	if underflow {
		return 0, ErrArithmeticUnderflow
	}
	return v, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	v, overflow := gethmath.SafeMul(a, b)
	if overflow {
		return 0, ErrArithmeticOverflow
	}
	return v, nil
}

// CheckedInc adds one to a counter.
func CheckedInc(a uint64) (uint64, error) {
	return CheckedAdd(a, 1)
}

// MulDiv computes a*b/d with a 256-bit intermediate so the product never
// overflows. The quotient must fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return x.Uint64(), nil
}

// Bps returns amount*bps/10_000, truncated.
func Bps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// Percent returns amount*pct/100, truncated.
func Percent(amount uint64, pct uint8) (uint64, error) {
	return MulDiv(amount, uint64(pct), 100)
}
