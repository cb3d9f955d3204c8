// Copyright 2025 The go-gastank Authors

package ledger

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// TestPostgresRoundTrip needs a live database and is skipped without one.
// Deltas rather than absolutes keep it safe to run against a reused schema.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("GASTANK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GASTANK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer s.Close()

	before, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}

	spend := NewEvent(KindSpend, big.NewInt(123456), big.NewInt(789))
	spend.Sender = common.HexToAddress("0xa1")
	spend.OpHash = common.HexToHash("0x01")
	if err := s.Append(ctx, spend); err != nil {
		t.Fatalf("append spend: %v", err)
	}

	topup := NewEvent(KindTopUp, big.NewInt(1000), big.NewInt(10))
	if err := s.Append(ctx, topup); err != nil {
		t.Fatalf("append topup: %v", err)
	}

	after, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	wantNative := new(big.Int).Add(before.NativeSpent, big.NewInt(124456))
	if after.NativeSpent.Cmp(wantNative) != 0 {
		t.Errorf("native spent %v, want %v", after.NativeSpent, wantNative)
	}
	wantTokens := new(big.Int).Add(before.TokensDebited, big.NewInt(799))
	if after.TokensDebited.Cmp(wantTokens) != 0 {
		t.Errorf("tokens debited %v, want %v", after.TokensDebited, wantTokens)
	}
	if after.Records != before.Records+2 {
		t.Errorf("records %d, want %d", after.Records, before.Records+2)
	}

	events, err := s.Events(ctx, 2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != spend.ID || events[1].ID != topup.ID {
		t.Errorf("event window out of order: %s, %s", events[0].ID, events[1].ID)
	}
	if events[0].Sender != spend.Sender || events[0].Tokens.Int64() != 789 {
		t.Errorf("spend event mangled: %+v", events[0])
	}
}
