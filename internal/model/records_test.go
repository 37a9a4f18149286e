package model

import (
	"testing"
)

func TestRecordKind(t *testing.T) {
	cases := []struct {
		record Record
		want   Kind
	}{
		{Record{TickInfo: &TickInfo{}}, KindTickInfo},
		{Record{Slot0: &Slot0{}}, KindSlot0},
		{Record{Trade: &Trade{}}, KindTrade},
	}
	for _, tc := range cases {
		if got := tc.record.Kind(); got != tc.want {
			t.Fatalf("kind = %v, want %v", got, tc.want)
		}
	}
}

func TestCombineSplitsByKindPreservingOrder(t *testing.T) {
	records := []Record{
		{Trade: &Trade{BlockNumber: 1}},
		{TickInfo: &TickInfo{BlockNumber: 2}},
		{Slot0: &Slot0{BlockNumber: 3}},
		{TickInfo: &TickInfo{BlockNumber: 4}},
		{Trade: &Trade{BlockNumber: 5}},
	}

	ticks, slot0s, trades := Combine(records)

	if len(ticks) != 2 || ticks[0].BlockNumber != 2 || ticks[1].BlockNumber != 4 {
		t.Fatalf("ticks = %+v", ticks)
	}
	if len(slot0s) != 1 || slot0s[0].BlockNumber != 3 {
		t.Fatalf("slot0s = %+v", slot0s)
	}
	if len(trades) != 2 || trades[0].BlockNumber != 1 || trades[1].BlockNumber != 5 {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestPoolDescriptorValidate(t *testing.T) {
	desc := PoolDescriptor{
		Address:       "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		Token0:        TokenInfo{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		Token1:        TokenInfo{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		EarliestBlock: 12376729,
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := desc
	bad.Address = "not-an-address"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for malformed address")
	}
}
