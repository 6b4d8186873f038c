package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTransitionJSONRoundTrip(t *testing.T) {
	original := Transition{
		ActionID: 7,
		Kind:     ActionSwap,
		From:     StateSubmitting,
		To:       StateSettled,
		Account:  "0x1111111111111111111111111111111111111111",
		TxHash:   "0xdef456",
		At:       "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Transition
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestActionStateTerminal(t *testing.T) {
	if !StateSettled.Terminal() || !StateFailed.Terminal() {
		t.Fatalf("settled and failed are terminal")
	}
	if StateSubmitting.Terminal() || !StateSubmitting.InFlight() || !StateAwaitingAllowance.InFlight() {
		t.Fatalf("in-flight states mismatch")
	}
}
