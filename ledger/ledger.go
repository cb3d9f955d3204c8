// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

// Package ledger persists the sponsor's cumulative spend and replenishment
// history: monotonically non-decreasing totals plus an ordered event log.
// Implementations serialize their own writes, but the system-level contract
// is stronger than that: the replenishment controller is the only writer.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("ledger: store is closed")
	ErrNegativeAmount = errors.New("ledger: event amounts must be non-negative")
)

// Kind labels a ledger event.
type Kind string

const (
	KindTopUp          Kind = "topup"           // debit recorded before a transfer attempt
	KindTopUpConfirmed Kind = "topup_confirmed" // transfer broadcast; amounts zero, tx hash set
	KindTopUpFailed    Kind = "topup_failed"    // transfer failed; amounts zero
	KindSpend          Kind = "spend"           // settlement reconciled from the sponsor
)

// Event is one timestamped entry in the ordered log. Sender and OpHash are
// set on spend events, TxHash on top-up outcomes; unused fields stay zero.
type Event struct {
	ID     string         `json:"id"`
	Time   time.Time      `json:"timestamp"`
	Kind   Kind           `json:"kind"`
	Native *big.Int       `json:"nativeAmount"`
	Tokens *big.Int       `json:"tokenAmount"`
	Sender common.Address `json:"sender"`
	OpHash common.Hash    `json:"operationHash"`
	TxHash common.Hash    `json:"txHash"`
}

// NewEvent stamps a fresh event with identity and time.
func NewEvent(kind Kind, native, tokens *big.Int) Event {
	return Event{
		ID:     uuid.NewString(),
		Time:   time.Now().UTC(),
		Kind:   kind,
		Native: native,
		Tokens: tokens,
	}
}

// Totals are the cumulative counters. Every event adds its amounts, so at
// any point the totals equal the exact sum over the recorded events.
type Totals struct {
	NativeSpent   *big.Int `json:"nativeSpent"`
	TokensDebited *big.Int `json:"tokensDebited"`
	Wallets       uint64   `json:"walletCount"`
	Records       uint64   `json:"txCount"`
}

// Store is the durable ledger.
//
// Events returns the most recent limit entries in append order; a
// non-positive limit returns everything.
type Store interface {
	Append(ctx context.Context, ev Event) error
	Totals(ctx context.Context) (Totals, error)
	Events(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// normalizeAmount copies an event amount, mapping nil to zero and rejecting
// negatives so totals can only grow.
func normalizeAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return new(big.Int).Set(v), nil
}

func zeroTotals() Totals {
	return Totals{NativeSpent: new(big.Int), TokensDebited: new(big.Int)}
}

func copyTotals(t Totals) Totals {
	out := Totals{Wallets: t.Wallets, Records: t.Records}
	out.NativeSpent = new(big.Int)
	if t.NativeSpent != nil {
		out.NativeSpent.Set(t.NativeSpent)
	}
	out.TokensDebited = new(big.Int)
	if t.TokensDebited != nil {
		out.TokensDebited.Set(t.TokensDebited)
	}
	return out
}
