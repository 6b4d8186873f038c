package model

import "miniSwap/internal/units"

// SwapQuote is a non-binding preview of a swap.
type SwapQuote struct {
	Direction       Direction    `json:"direction"`
	AmountIn        units.Amount `json:"amount_in"`
	AmountInWithFee units.Amount `json:"amount_in_with_fee"`
	AmountOut       units.Amount `json:"amount_out"`
}

// LiquidityKind tags a LiquidityQuote.
type LiquidityKind string

const (
	LiquidityDeposit    LiquidityKind = "deposit"
	LiquidityWithdrawal LiquidityKind = "withdrawal"
)

// LiquidityQuote previews a deposit or a withdrawal.
type LiquidityQuote struct {
	Kind LiquidityKind `json:"kind"`

	Amount0 units.Amount `json:"amount0"`
	Amount1 units.Amount `json:"amount1"`

	// Deposit only.
	FixedSide       Side         `json:"fixed_side"`
	FreeRatio       bool         `json:"free_ratio"`
	EstimatedShares units.Amount `json:"estimated_shares"`

	// Withdrawal only.
	Shares units.Amount `json:"shares"`
}
