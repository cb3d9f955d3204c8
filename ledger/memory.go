// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore keeps the ledger in process memory. It backs tests and
// embedded runs where durability is someone else's problem.
type MemoryStore struct {
	mu     sync.RWMutex
	totals Totals
	events []Event
	seen   map[common.Address]struct{}
	closed bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		totals: zeroTotals(),
		seen:   make(map[common.Address]struct{}),
	}
}

func (s *MemoryStore) Append(ctx context.Context, ev Event) error {
	native, err := normalizeAmount(ev.Native)
	if err != nil {
		return err
	}
	tokens, err := normalizeAmount(ev.Tokens)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ev.Native = native
	ev.Tokens = tokens
	s.totals.NativeSpent.Add(s.totals.NativeSpent, native)
	s.totals.TokensDebited.Add(s.totals.TokensDebited, tokens)
	s.totals.Records++
	if ev.Sender != (common.Address{}) {
		if _, ok := s.seen[ev.Sender]; !ok {
			s.seen[ev.Sender] = struct{}{}
			s.totals.Wallets++
		}
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) Totals(ctx context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Totals{}, ErrClosed
	}
	return copyTotals(s.totals), nil
}

func (s *MemoryStore) Events(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
