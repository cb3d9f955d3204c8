// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.
//
// Conversion policy between native currency cost and utility token units.
// The same math runs in the sponsorship contract and in the off-chain
// replenishment loop, so it lives in one place and stays pure.

package rates

import (
	"errors"

	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var (
	ErrZeroRate = errors.New("conversion rate must be positive")
	ErrOverflow = errors.New("conversion overflows 256 bits")
)

// oneNativeUnit is the number of native smallest units per whole coin.
// Rates are quoted in token units per whole native coin.
var oneNativeUnit = uint256.NewInt(params.Ether)

// OneNativeUnit returns the scaling denominator used by the policy.
func OneNativeUnit() *uint256.Int {
	return new(uint256.Int).Set(oneNativeUnit)
}

// ToTokens converts a native cost (smallest units) into utility token units:
// floor(cost * rate / oneNativeUnit). Fixed-width 256-bit arithmetic only.
func ToTokens(cost, rate *uint256.Int) (*uint256.Int, error) {
	if rate == nil || rate.IsZero() {
		return nil, ErrZeroRate
	}
	if cost == nil {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(cost, rate)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, oneNativeUnit), nil
}

// ToNative is the symmetric inverse used for off-chain cross-checking:
// floor(tokens * oneNativeUnit / rate). Because both directions floor,
// ToNative(ToTokens(x)) can undershoot x by up to one token's worth.
func ToNative(tokens, rate *uint256.Int) (*uint256.Int, error) {
	if rate == nil || rate.IsZero() {
		return nil, ErrZeroRate
	}
	if tokens == nil {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(tokens, oneNativeUnit)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, rate), nil
}
