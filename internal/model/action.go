package model

import (
	"encoding/json"
	"time"

	"miniSwap/internal/units"
)

// ActionKind tags a PendingAction.
type ActionKind string

const (
	ActionGrant           ActionKind = "grant-allowance"
	ActionSwap            ActionKind = "swap"
	ActionAddLiquidity    ActionKind = "add-liquidity"
	ActionRemoveLiquidity ActionKind = "remove-liquidity"
)

// ActionState is the orchestration state of a PendingAction.
type ActionState string

const (
	StateIdle              ActionState = "idle"
	StateAwaitingAllowance ActionState = "awaiting-allowance"
	StateAllowanceGranted  ActionState = "allowance-granted"
	StateSubmitting        ActionState = "submitting"
	StateSettled           ActionState = "settled"
	StateFailed            ActionState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s ActionState) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

// InFlight reports whether the action currently talks to the ledger.
func (s ActionState) InFlight() bool {
	return s == StateAwaitingAllowance || s == StateSubmitting
}

// PendingAction is one user-confirmed operation and its progress.
// Parameters are fixed at confirmation time.
type PendingAction struct {
	ID        uint64       `json:"id"`
	Kind      ActionKind   `json:"kind"`
	State     ActionState  `json:"state"`
	Account   string       `json:"account"`
	Direction Direction    `json:"direction,omitempty"`
	Side      Side         `json:"side"`
	AmountIn  units.Amount `json:"amount_in"`
	Amount0   units.Amount `json:"amount0"`
	Amount1   units.Amount `json:"amount1"`
	Shares    units.Amount `json:"shares"`
	GrantTxs  []string     `json:"grant_txs,omitempty"`
	TxHash    string       `json:"tx_hash,omitempty"`
	Err       string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Transition is one state change of a PendingAction, suitable for journaling.
type Transition struct {
	ActionID uint64      `json:"action_id"`
	Kind     ActionKind  `json:"kind"`
	From     ActionState `json:"from"`
	To       ActionState `json:"to"`
	Account  string      `json:"account"`
	TxHash   string      `json:"tx_hash,omitempty"`
	Error    string      `json:"error,omitempty"`
	At       string      `json:"at"`
}

// MarshalJSON ensures Transition is encoded with stable field names.
func (t Transition) MarshalJSON() ([]byte, error) {
	type Alias Transition
	return json.Marshal(Alias(t))
}

// UnmarshalJSON decodes a Transition from JSON.
func (t *Transition) UnmarshalJSON(data []byte) error {
	type Alias Transition
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Transition(a)
	return nil
}
