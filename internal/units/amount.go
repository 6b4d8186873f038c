package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fractional digits shown for amounts.
const DisplayPlaces = 6

var (
	// ErrInvalidAmount is returned for negative, non-numeric or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("uint256 overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("uint256 underflow")
	// ErrDivideByZero is returned for a zero divisor.
	ErrDivideByZero = errors.New("division by zero")
)

// Amount is a non-negative integer count of token minor units.
// All ledger-facing arithmetic is integer-only with truncating division,
// matching the contract bit for bit.
type Amount struct {
	v uint256.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// FromUint64 builds an amount from a minor-unit count.
func FromUint64(x uint64) Amount {
	var a Amount
	a.v.SetUint64(x)
	return a
}

// Max returns 2^256-1, the unlimited allowance value.
func Max() Amount {
	var a Amount
	a.v.SetAllOne()
	return a
}

// FromBig converts a big.Int minor-unit count.
func FromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, b.String())
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("%w: %s", ErrOverflow, b.String())
	}
	return Amount{v: *v}, nil
}

// FromString parses a base-10 minor-unit integer.
func FromString(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromBig(b)
}

// MustFromString is FromString for constants and tests.
func MustFromString(s string) Amount {
	a, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse converts user text in whole token units (e.g. "1.5") into minor
// units for a token with the given decimals. Text with more fractional
// digits than the token supports is rejected rather than rounded.
func Parse(text string, decimals uint8) (Amount, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	if d.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative %q", ErrInvalidAmount, text)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, text, decimals)
	}
	return FromBig(shifted.BigInt())
}

// Big returns a fresh big.Int copy.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Lt(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) Gt(b Amount) bool {
	return a.v.Gt(&b.v)
}

func (a Amount) Eq(b Amount) bool {
	return a.v.Eq(&b.v)
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Div truncates toward zero.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.v.IsZero() {
		return Amount{}, ErrDivideByZero
	}
	var out Amount
	out.v.Div(&a.v, &b.v)
	return out, nil
}

// MulDiv computes a*b/c the way the contract does: the product must fit in
// 256 bits and the division truncates.
func MulDiv(a, b, c Amount) (Amount, error) {
	product, err := a.Mul(b)
	if err != nil {
		return Amount{}, err
	}
	return product.Div(c)
}

// Sqrt returns the integer square root.
func (a Amount) Sqrt() Amount {
	var out Amount
	out.v.Sqrt(&a.v)
	return out
}

func Min(a, b Amount) Amount {
	if a.Lt(b) {
		return a
	}
	return b
}

// String returns the base-10 minor-unit count.
func (a Amount) String() string {
	return a.v.ToBig().String()
}

// Decimal returns the amount in whole token units. Display only.
func (a Amount) Decimal(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -int32(decimals))
}

// Format renders the exact whole-unit value without trailing zeros.
func (a Amount) Format(decimals uint8) string {
	return a.Decimal(decimals).String()
}

// Display renders the value with DisplayPlaces fractional digits.
func (a Amount) Display(decimals uint8) string {
	return a.Decimal(decimals).StringFixed(DisplayPlaces)
}

// MarshalText encodes the minor-unit count as a base-10 string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := FromString(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
