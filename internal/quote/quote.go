// Package quote mirrors the pool contract's pricing and liquidity formulas.
// Every function is pure and reads the snapshot it is given.
package quote

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

var (
	feeNumerator   = units.FromUint64(997)
	feeDenominator = units.FromUint64(1000)

	hundred = decimal.NewFromInt(100)

	// percentPrecision is the number of digits kept when dividing decimals.
	percentPrecision int32 = 18
)

var (
	// ErrInvalidDirection is returned for a direction other than 0to1/1to0.
	ErrInvalidDirection = errors.New("invalid swap direction")
	// ErrInvalidSide is returned for a side other than 0/1.
	ErrInvalidSide = errors.New("invalid side")
	// ErrInvalidAmount is returned for zero amounts where a positive one is required.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidShares is returned for a zero withdrawal.
	ErrInvalidShares = errors.New("shares must be positive")
	// ErrInsufficientShares is returned when burning more shares than held.
	ErrInsufficientShares = errors.New("shares exceed caller balance")
	// ErrEmptyPool is returned when the operation needs an initialized pool.
	ErrEmptyPool = errors.New("pool has no liquidity")
)

// Swap previews selling amountIn of the direction's input asset. The 0.3% fee
// is taken by scaling amountIn by 997/1000 before the constant-product
// formula, with the same truncation the contract applies.
func Swap(snap model.PoolSnapshot, dir model.Direction, amountIn units.Amount) (model.SwapQuote, error) {
	if !dir.Valid() {
		return model.SwapQuote{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	out := model.SwapQuote{Direction: dir, AmountIn: amountIn}
	if amountIn.IsZero() {
		return out, nil
	}

	withFee, err := units.MulDiv(amountIn, feeNumerator, feeDenominator)
	if err != nil {
		return model.SwapQuote{}, fmt.Errorf("amount in with fee: %w", err)
	}
	out.AmountInWithFee = withFee

	reserveIn, reserveOut := snap.Reserves(dir)
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return out, nil
	}

	denominator, err := reserveIn.Add(withFee)
	if err != nil {
		return model.SwapQuote{}, fmt.Errorf("swap denominator: %w", err)
	}
	amountOut, err := units.MulDiv(reserveOut, withFee, denominator)
	if err != nil {
		return model.SwapQuote{}, fmt.Errorf("swap amount out: %w", err)
	}
	out.AmountOut = amountOut
	return out, nil
}

// Deposit derives the other side of a deposit from the pool ratio. On an empty
// pool any positive pair is accepted, so the quote is returned with FreeRatio
// set and the other side left for the caller. The derived amount is advisory;
// the contract decides what ratio it accepts.
func Deposit(snap model.PoolSnapshot, amount units.Amount, fixed model.Side) (model.LiquidityQuote, error) {
	if !fixed.Valid() {
		return model.LiquidityQuote{}, fmt.Errorf("%w: %d", ErrInvalidSide, fixed)
	}
	if amount.IsZero() {
		return model.LiquidityQuote{}, ErrInvalidAmount
	}

	q := model.LiquidityQuote{Kind: model.LiquidityDeposit, FixedSide: fixed}
	setSide(&q, fixed, amount)

	reserveFixed := snap.Reserve(fixed)
	reserveOther := snap.Reserve(fixed.Other())
	if reserveFixed.IsZero() || reserveOther.IsZero() {
		q.FreeRatio = true
		return q, nil
	}

	other, err := units.MulDiv(amount, reserveOther, reserveFixed)
	if err != nil {
		return model.LiquidityQuote{}, fmt.Errorf("derive deposit amount: %w", err)
	}
	setSide(&q, fixed.Other(), other)

	shares, err := MintedShares(snap, q.Amount0, q.Amount1)
	if err == nil {
		q.EstimatedShares = shares
	}
	return q, nil
}

// DepositPair finalizes a deposit with both amounts chosen.
func DepositPair(snap model.PoolSnapshot, amount0, amount1 units.Amount) (model.LiquidityQuote, error) {
	if amount0.IsZero() || amount1.IsZero() {
		return model.LiquidityQuote{}, ErrInvalidAmount
	}
	shares, err := MintedShares(snap, amount0, amount1)
	if err != nil {
		return model.LiquidityQuote{}, err
	}
	return model.LiquidityQuote{
		Kind:            model.LiquidityDeposit,
		Amount0:         amount0,
		Amount1:         amount1,
		FreeRatio:       snap.TotalShares.IsZero(),
		EstimatedShares: shares,
	}, nil
}

// MintedShares estimates the shares a deposit mints: sqrt(amount0*amount1) for
// the first deposit, otherwise the smaller of the two proportional claims.
// It is an estimate of the contract's mint rule, not settlement truth.
func MintedShares(snap model.PoolSnapshot, amount0, amount1 units.Amount) (units.Amount, error) {
	if snap.TotalShares.IsZero() {
		product, err := amount0.Mul(amount1)
		if err != nil {
			return units.Amount{}, fmt.Errorf("initial shares: %w", err)
		}
		return product.Sqrt(), nil
	}
	if snap.Reserve0.IsZero() || snap.Reserve1.IsZero() {
		return units.Amount{}, ErrEmptyPool
	}
	claim0, err := units.MulDiv(amount0, snap.TotalShares, snap.Reserve0)
	if err != nil {
		return units.Amount{}, fmt.Errorf("shares from amount0: %w", err)
	}
	claim1, err := units.MulDiv(amount1, snap.TotalShares, snap.Reserve1)
	if err != nil {
		return units.Amount{}, fmt.Errorf("shares from amount1: %w", err)
	}
	return units.Min(claim0, claim1), nil
}

// Withdrawal previews burning shares: amount_i = reserve_i * shares / totalShares.
func Withdrawal(snap model.PoolSnapshot, shares units.Amount) (model.LiquidityQuote, error) {
	if shares.IsZero() {
		return model.LiquidityQuote{}, ErrInvalidShares
	}
	if snap.TotalShares.IsZero() {
		return model.LiquidityQuote{}, ErrEmptyPool
	}
	if shares.Gt(snap.CallerShares) {
		return model.LiquidityQuote{}, fmt.Errorf("%w: %s > %s", ErrInsufficientShares, shares, snap.CallerShares)
	}

	amount0, err := units.MulDiv(snap.Reserve0, shares, snap.TotalShares)
	if err != nil {
		return model.LiquidityQuote{}, fmt.Errorf("withdraw amount0: %w", err)
	}
	amount1, err := units.MulDiv(snap.Reserve1, shares, snap.TotalShares)
	if err != nil {
		return model.LiquidityQuote{}, fmt.Errorf("withdraw amount1: %w", err)
	}
	return model.LiquidityQuote{
		Kind:    model.LiquidityWithdrawal,
		Shares:  shares,
		Amount0: amount0,
		Amount1: amount1,
	}, nil
}

// ProjectedPoolShare estimates the caller's ownership percentage after
// depositing amount0 of asset0, assuming shares are minted in proportion to
// asset0 alone. An empty pool yields 100. The result is a display estimate
// and can diverge from the shares the contract actually mints.
func ProjectedPoolShare(snap model.PoolSnapshot, amount0 units.Amount) decimal.Decimal {
	if snap.Empty() {
		return hundred
	}
	if snap.Reserve0.IsZero() || snap.TotalShares.IsZero() {
		return decimal.Zero
	}

	total := decimal.NewFromBigInt(snap.TotalShares.Big(), 0)
	added := decimal.NewFromBigInt(amount0.Big(), 0).
		DivRound(decimal.NewFromBigInt(snap.Reserve0.Big(), 0), percentPrecision).
		Mul(total)
	owned := decimal.NewFromBigInt(snap.CallerShares.Big(), 0).Add(added)
	return owned.DivRound(total.Add(added), percentPrecision).Mul(hundred)
}

// CallerPoolShare is the caller's current ownership percentage.
func CallerPoolShare(snap model.PoolSnapshot) decimal.Decimal {
	if snap.TotalShares.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(snap.CallerShares.Big(), 0).
		DivRound(decimal.NewFromBigInt(snap.TotalShares.Big(), 0), percentPrecision).
		Mul(hundred)
}

// SpotPrice is reserveOut/reserveIn in whole units, for display.
func SpotPrice(snap model.PoolSnapshot, dir model.Direction, decimalsIn, decimalsOut uint8) decimal.Decimal {
	reserveIn, reserveOut := snap.Reserves(dir)
	if reserveIn.IsZero() {
		return decimal.Zero
	}
	return reserveOut.Decimal(decimalsOut).DivRound(reserveIn.Decimal(decimalsIn), percentPrecision)
}

func setSide(q *model.LiquidityQuote, side model.Side, amount units.Amount) {
	if side == model.Side1 {
		q.Amount1 = amount
		return
	}
	q.Amount0 = amount
}
