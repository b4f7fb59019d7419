package calculator

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WadDecimals is the fixed-point precision used by pool contracts.
const WadDecimals = 18

var (
	ErrOverflow   = errors.New("calculator: wad overflow")
	ErrNegative   = errors.New("calculator: negative wad operand")
	ErrDivByZero  = errors.New("calculator: division by zero")
	wadU          = uint256.NewInt(1e18)
	halfWadU      = uint256.NewInt(5e17)
	maxUint256Big = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// MaxUint256 returns 2^256-1, used as "withdraw everything" by pool calls.
func MaxUint256() *big.Int {
	return new(big.Int).Set(maxUint256Big)
}

// WadToDecimal converts an 18-decimal fixed-point integer to a decimal.
func WadToDecimal(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -WadDecimals)
}

// DecimalToWad converts a decimal to an 18-decimal fixed-point integer,
// truncating anything below 1e-18.
func DecimalToWad(d decimal.Decimal) *big.Int {
	return d.Shift(WadDecimals).BigInt()
}

// FloatToWad converts a config-style float to a wad.
func FloatToWad(f float64) *big.Int {
	return DecimalToWad(decimal.NewFromFloat(f))
}

// ChangeDecimals rescales amount from one token precision to another.
// Scaling down truncates.
func ChangeDecimals(amount *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case from > to:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		return new(big.Int).Quo(amount, scale)
	default:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		return new(big.Int).Mul(amount, scale)
	}
}

// Wmul multiplies two wads, rounding half up.
func Wmul(x, y *big.Int) (*big.Int, error) {
	ux, err := toU256(x)
	if err != nil {
		return nil, err
	}
	uy, err := toU256(y)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(ux, uy)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = z.AddOverflow(z, halfWadU); overflow {
		return nil, ErrOverflow
	}
	return z.Div(z, wadU).ToBig(), nil
}

// Wdiv divides two wads, rounding half up.
func Wdiv(x, y *big.Int) (*big.Int, error) {
	ux, err := toU256(x)
	if err != nil {
		return nil, err
	}
	uy, err := toU256(y)
	if err != nil {
		return nil, err
	}
	if uy.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulOverflow(ux, wadU)
	if overflow {
		return nil, ErrOverflow
	}
	half := new(uint256.Int).Rsh(uy, 1)
	if _, overflow = z.AddOverflow(z, half); overflow {
		return nil, ErrOverflow
	}
	return z.Div(z, uy).ToBig(), nil
}

// MinBig returns the smaller of a and b.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func toU256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, ErrNegative
	}
	u, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}
