// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package refill

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

var (
	weiPerNative = new(big.Int).SetUint64(params.Ether)
	weiPerMicro  = new(big.Int).SetUint64(params.Ether / 1e6)
)

// ChainReader is the read-only slice of an RPC client the monitor needs.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Monitor reads the sponsor's native reserve and judges it against a
// low-water mark.
type Monitor struct {
	client    ChainReader
	account   common.Address
	threshold *big.Int
}

func NewMonitor(client ChainReader, account common.Address, threshold *big.Int) *Monitor {
	return &Monitor{
		client:    client,
		account:   account,
		threshold: new(big.Int).Set(threshold),
	}
}

// Poll reads the current reserve balance at the latest block.
func (m *Monitor) Poll(ctx context.Context) (*big.Int, error) {
	balance, err := m.client.BalanceAt(ctx, m.account, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve of %s: %v", ErrRPCUnavailable, m.account.Hex(), err)
	}
	return balance, nil
}

// Low reports whether the balance is strictly under the threshold.
func (m *Monitor) Low(balance *big.Int) bool {
	return balance.Cmp(m.threshold) < 0
}

func (m *Monitor) Threshold() *big.Int {
	return new(big.Int).Set(m.threshold)
}

// FormatNative renders a wei amount as whole native units with six
// fractional digits, in pure integer arithmetic. Sub-microunit dust is
// truncated, never rounded up.
func FormatNative(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0.000000"
	}
	v := wei
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v = new(big.Int).Neg(v)
	}
	whole, rem := new(big.Int).QuoRem(v, weiPerNative, new(big.Int))
	micros := new(big.Int).Quo(rem, weiPerMicro).Int64()
	return fmt.Sprintf("%s%s.%06d", sign, whole.String(), micros)
}

// ParseNative converts a decimal native amount such as "0.01" to wei.
// At most 18 fractional digits are accepted and the value must be
// non-negative.
func ParseNative(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("refill: bad native amount %q", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	out, ok := new(big.Int).SetString(whole, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("refill: bad native amount %q", s)
	}
	out.Mul(out, weiPerNative)
	if frac != "" {
		if len(frac) > 18 {
			return nil, fmt.Errorf("refill: %q has more than 18 fractional digits", s)
		}
		f, ok := new(big.Int).SetString(frac+strings.Repeat("0", 18-len(frac)), 10)
		if !ok || f.Sign() < 0 {
			return nil, fmt.Errorf("refill: bad native amount %q", s)
		}
		out.Add(out, f)
	}
	return out, nil
}
