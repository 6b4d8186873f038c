package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/units"
)

// PoolSnapshot is the last-known mirror of the pool's ledger state as seen by Caller.
// It is replaced wholesale on every reload and never mutated in place.
type PoolSnapshot struct {
	Pool         string       `json:"pool"`
	Caller       string       `json:"caller"`
	Reserve0     units.Amount `json:"reserve0"`
	Reserve1     units.Amount `json:"reserve1"`
	TotalShares  units.Amount `json:"total_shares"`
	CallerShares units.Amount `json:"caller_shares"`
	Block        uint64       `json:"block"`
	LoadedAt     time.Time    `json:"loaded_at"`
}

// Empty reports whether the pool has never been seeded.
func (s PoolSnapshot) Empty() bool {
	return s.Reserve0.IsZero() && s.Reserve1.IsZero() && s.TotalShares.IsZero()
}

// Validate checks that reserves and shares are all zero or all positive,
// and that the caller never holds more than the total supply.
func (s PoolSnapshot) Validate() error {
	zeros := 0
	for _, v := range []units.Amount{s.Reserve0, s.Reserve1, s.TotalShares} {
		if v.IsZero() {
			zeros++
		}
	}
	if zeros != 0 && zeros != 3 {
		return fmt.Errorf("inconsistent pool state: reserve0=%s reserve1=%s total_shares=%s", s.Reserve0, s.Reserve1, s.TotalShares)
	}
	if s.CallerShares.Gt(s.TotalShares) {
		return fmt.Errorf("caller shares %s exceed total shares %s", s.CallerShares, s.TotalShares)
	}
	return nil
}

// Reserves returns (reserveIn, reserveOut) for a swap direction.
func (s PoolSnapshot) Reserves(dir Direction) (units.Amount, units.Amount) {
	if dir == OneForZero {
		return s.Reserve1, s.Reserve0
	}
	return s.Reserve0, s.Reserve1
}

// Reserve returns the reserve of asset i (0 or 1).
func (s PoolSnapshot) Reserve(side Side) units.Amount {
	if side == Side1 {
		return s.Reserve1
	}
	return s.Reserve0
}

// WithoutCaller returns a copy with the caller-specific fields cleared.
// Reserves and total shares are pool-wide facts and are kept.
func (s PoolSnapshot) WithoutCaller() PoolSnapshot {
	s.Caller = ""
	s.CallerShares = units.Zero()
	return s
}

// HeldBy reports whether the caller-specific fields were read for account.
func (s PoolSnapshot) HeldBy(account common.Address) bool {
	return sameAccount(s.Caller, account)
}

// PoolAddress parses the pool address.
func (s PoolSnapshot) PoolAddress() common.Address {
	return common.HexToAddress(s.Pool)
}

func sameAccount(hex string, account common.Address) bool {
	return common.IsHexAddress(hex) && common.HexToAddress(hex) == account
}
