package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/units"
)

func TestPoolSnapshotValidate(t *testing.T) {
	empty := PoolSnapshot{}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty pool should be valid: %v", err)
	}
	if !empty.Empty() {
		t.Fatalf("expected empty pool")
	}

	seeded := PoolSnapshot{
		Reserve0:     units.FromUint64(100),
		Reserve1:     units.FromUint64(400),
		TotalShares:  units.FromUint64(200),
		CallerShares: units.FromUint64(50),
	}
	if err := seeded.Validate(); err != nil {
		t.Fatalf("seeded pool should be valid: %v", err)
	}

	partial := PoolSnapshot{Reserve0: units.FromUint64(1)}
	if err := partial.Validate(); err == nil {
		t.Fatalf("expected error for partially zero pool")
	}

	overdrawn := seeded
	overdrawn.CallerShares = units.FromUint64(201)
	if err := overdrawn.Validate(); err == nil {
		t.Fatalf("expected error for caller shares above supply")
	}
}

func TestPoolSnapshotWithoutCaller(t *testing.T) {
	snap := PoolSnapshot{
		Caller:       "0x1111111111111111111111111111111111111111",
		Reserve0:     units.FromUint64(100),
		Reserve1:     units.FromUint64(400),
		TotalShares:  units.FromUint64(200),
		CallerShares: units.FromUint64(50),
	}
	cleared := snap.WithoutCaller()
	if cleared.Caller != "" || !cleared.CallerShares.IsZero() {
		t.Fatalf("caller fields not cleared: %+v", cleared)
	}
	if !cleared.Reserve0.Eq(snap.Reserve0) || !cleared.TotalShares.Eq(snap.TotalShares) {
		t.Fatalf("pool-wide fields changed: %+v", cleared)
	}
	if snap.CallerShares.IsZero() {
		t.Fatalf("original snapshot mutated")
	}
}

func TestAssetHandleNeedsGrant(t *testing.T) {
	h := AssetHandle{}
	if !h.NeedsGrant(units.Zero()) {
		t.Fatalf("zero allowance always needs a grant")
	}
	h.Allowance = units.FromUint64(10)
	if h.NeedsGrant(units.FromUint64(10)) {
		t.Fatalf("allowance equal to amount should not need a grant")
	}
	if !h.NeedsGrant(units.FromUint64(11)) {
		t.Fatalf("allowance below amount should need a grant")
	}
}

func TestParseDirection(t *testing.T) {
	dir, err := ParseDirection("1TO0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != OneForZero || dir.Input() != Side1 || dir.Output() != Side0 {
		t.Fatalf("direction mismatch: %s", dir)
	}
	if dir.Flip() != ZeroForOne {
		t.Fatalf("flip mismatch")
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error for invalid direction")
	}
}

func TestHeldBy(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	snap := PoolSnapshot{Caller: alice.Hex()}
	if !snap.HeldBy(alice) || snap.HeldBy(bob) {
		t.Fatalf("snapshot read for alice: HeldBy(alice)=%v HeldBy(bob)=%v", snap.HeldBy(alice), snap.HeldBy(bob))
	}
	if snap.WithoutCaller().HeldBy(alice) {
		t.Fatalf("cleared snapshot should not belong to anyone")
	}

	lower := AssetHandle{Holder: "0x00000000000000000000000000000000000a11ce"}
	if !lower.HeldBy(alice) {
		t.Fatalf("holder comparison should ignore checksum case")
	}
	if lower.Cleared().HeldBy(alice) {
		t.Fatalf("cleared handle should not belong to anyone")
	}
}
