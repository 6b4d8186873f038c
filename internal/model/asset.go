package model

import (
	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/units"
)

// AssetMeta captures immutable ERC20 metadata.
type AssetMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// AssetHandle is one side of the pool together with the holder's balance and
// the allowance granted to the pool.
type AssetHandle struct {
	AssetMeta
	Holder    string       `json:"holder"`
	Balance   units.Amount `json:"balance"`
	Allowance units.Amount `json:"allowance"`
}

// NeedsGrant reports whether debiting amount requires a new allowance grant.
// A zero allowance always needs one.
func (h AssetHandle) NeedsGrant(amount units.Amount) bool {
	if h.Allowance.IsZero() {
		return true
	}
	return h.Allowance.Lt(amount)
}

// Cleared returns a copy without holder-specific fields.
func (h AssetHandle) Cleared() AssetHandle {
	h.Holder = ""
	h.Balance = units.Zero()
	h.Allowance = units.Zero()
	return h
}

// HeldBy reports whether balance and allowance were read for account.
func (h AssetHandle) HeldBy(account common.Address) bool {
	return sameAccount(h.Holder, account)
}

func (h AssetHandle) AddressValue() common.Address {
	return common.HexToAddress(h.Address)
}

// Label returns the symbol, falling back to the address.
func (h AssetHandle) Label() string {
	if h.Symbol != "" {
		return h.Symbol
	}
	return h.Address
}
