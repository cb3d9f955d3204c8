// Copyright 2025 The go-gastank Authors

package rates

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestToTokens(t *testing.T) {
	rate := uint256.NewInt(10000)

	tests := []struct {
		name string
		cost *uint256.Int
		want uint64
	}{
		{"quoted max cost", uint256.NewInt(1e16), 100}, // 0.01 native at rate 10000
		{"actual cost", uint256.NewInt(8e15), 80},      // 0.008 native
		{"one wei floors to zero", uint256.NewInt(1), 0},
		{"just below one token", uint256.NewInt(1e14 - 1), 0},
		{"exactly one token", uint256.NewInt(1e14), 1},
		{"zero cost", new(uint256.Int), 0},
		{"nil cost", nil, 0},
	}
	for _, tt := range tests {
		got, err := ToTokens(tt.cost, rate)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got.Uint64() != tt.want {
			t.Errorf("%s: got %s tokens, want %d", tt.name, got, tt.want)
		}
	}
}

func TestToTokensMonotonic(t *testing.T) {
	rate := uint256.NewInt(3)
	prev := new(uint256.Int)
	for wei := uint64(0); wei < 5e18/1e15; wei++ {
		cost := uint256.NewInt(wei * 1e15)
		got, err := ToTokens(cost, rate)
		if err != nil {
			t.Fatalf("cost %s: %v", cost, err)
		}
		if got.Lt(prev) {
			t.Fatalf("tokens decreased: %s -> %s at cost %s", prev, got, cost)
		}
		prev = got
	}
}

func TestToTokensZeroRate(t *testing.T) {
	if _, err := ToTokens(uint256.NewInt(1e18), nil); !errors.Is(err, ErrZeroRate) {
		t.Errorf("nil rate: expected ErrZeroRate, got %v", err)
	}
	if _, err := ToTokens(uint256.NewInt(1e18), new(uint256.Int)); !errors.Is(err, ErrZeroRate) {
		t.Errorf("zero rate: expected ErrZeroRate, got %v", err)
	}
}

func TestToTokensOverflow(t *testing.T) {
	huge := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1)) // 2^256 - 1
	if _, err := ToTokens(huge, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestToNative(t *testing.T) {
	rate := uint256.NewInt(10000)

	got, err := ToNative(uint256.NewInt(100), rate)
	if err != nil {
		t.Fatalf("ToNative: %v", err)
	}
	if want := uint256.NewInt(1e16); !got.Eq(want) {
		t.Errorf("100 tokens at rate 10000: got %s wei, want %s", got, want)
	}

	if _, err := ToNative(uint256.NewInt(1), nil); !errors.Is(err, ErrZeroRate) {
		t.Errorf("expected ErrZeroRate, got %v", err)
	}
}

func TestRoundTripNeverGains(t *testing.T) {
	rate := uint256.NewInt(7777)
	for _, wei := range []uint64{1, 999, 1e12, 1e15, 3e15 + 17, 1e18} {
		cost := uint256.NewInt(wei)
		tokens, err := ToTokens(cost, rate)
		if err != nil {
			t.Fatalf("ToTokens(%d): %v", wei, err)
		}
		back, err := ToNative(tokens, rate)
		if err != nil {
			t.Fatalf("ToNative(%s): %v", tokens, err)
		}
		if back.Gt(cost) {
			t.Errorf("round trip gained value: %d wei -> %s tokens -> %s wei", wei, tokens, back)
		}
	}
}

func TestOneNativeUnitCallerCannotMutate(t *testing.T) {
	u := OneNativeUnit()
	u.SetUint64(1)
	if got := OneNativeUnit(); got.Uint64() != 1e18 {
		t.Errorf("internal denominator mutated: %s", got)
	}
}
