// Copyright 2025 The go-gastank Authors

package ledger

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/ethdb/memorydb"
)

func newTestKV(t *testing.T) *KVStore {
	t.Helper()
	s, err := NewKV(memorydb.New())
	if err != nil {
		t.Fatalf("new kv: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKVTotalsAndWallets(t *testing.T) {
	s := newTestKV(t)

	mustAppend(t, s, testEvent(KindSpend, "0xa1", 100, 10))
	mustAppend(t, s, testEvent(KindSpend, "0xb2", 200, 20))
	mustAppend(t, s, testEvent(KindSpend, "0xa1", 300, 30))
	mustAppend(t, s, testEvent(KindTopUp, "", 400, 40))

	got, err := s.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got.NativeSpent.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("native spent %v, want 1000", got.NativeSpent)
	}
	if got.TokensDebited.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("tokens debited %v, want 100", got.TokensDebited)
	}
	if got.Wallets != 2 {
		t.Errorf("wallets %d, want 2", got.Wallets)
	}
	if got.Records != 4 {
		t.Errorf("records %d, want 4", got.Records)
	}
}

func TestKVEventsWindow(t *testing.T) {
	s := newTestKV(t)

	var ids []string
	for i := int64(0); i < 5; i++ {
		ev := testEvent(KindSpend, "0xa1", i, i)
		ids = append(ids, ev.ID)
		mustAppend(t, s, ev)
	}

	last, err := s.Events(context.Background(), 2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("got %d events, want 2", len(last))
	}
	if last[0].ID != ids[3] || last[1].ID != ids[4] {
		t.Errorf("window [%s %s], want [%s %s]", last[0].ID, last[1].ID, ids[3], ids[4])
	}

	for _, limit := range []int{0, -1, 10} {
		all, err := s.Events(context.Background(), limit)
		if err != nil {
			t.Fatalf("events limit %d: %v", limit, err)
		}
		if len(all) != 5 {
			t.Fatalf("limit %d: got %d events, want 5", limit, len(all))
		}
		for i, ev := range all {
			if ev.ID != ids[i] {
				t.Errorf("limit %d: event %d is %s, want %s", limit, i, ev.ID, ids[i])
			}
		}
	}
}

func TestKVPersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")

	s, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAppend(t, s, testEvent(KindSpend, "0xa1", 500, 50))
	mustAppend(t, s, testEvent(KindSpend, "0xb2", 300, 30))
	outcome := testEvent(KindTopUpConfirmed, "", 0, 0)
	mustAppend(t, s, outcome)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got.NativeSpent.Cmp(big.NewInt(800)) != 0 {
		t.Errorf("native spent %v, want 800", got.NativeSpent)
	}
	if got.TokensDebited.Cmp(big.NewInt(80)) != 0 {
		t.Errorf("tokens debited %v, want 80", got.TokensDebited)
	}
	if got.Wallets != 2 || got.Records != 3 {
		t.Errorf("wallets %d records %d, want 2 and 3", got.Wallets, got.Records)
	}

	events, err := s.Events(context.Background(), 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[2].ID != outcome.ID || events[2].Kind != KindTopUpConfirmed {
		t.Errorf("last event %s %s, want %s %s", events[2].ID, events[2].Kind, outcome.ID, KindTopUpConfirmed)
	}

	// A sender counted before the restart is not counted again.
	mustAppend(t, s, testEvent(KindSpend, "0xa1", 1, 1))
	got, err = s.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got.Wallets != 2 || got.Records != 4 {
		t.Errorf("after reopen append: wallets %d records %d, want 2 and 4", got.Wallets, got.Records)
	}
}

func TestKVRejectsNegativeAmounts(t *testing.T) {
	s := newTestKV(t)

	ev := testEvent(KindSpend, "0xa1", 0, 0)
	ev.Native = big.NewInt(-1)
	if err := s.Append(context.Background(), ev); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("append: %v, want ErrNegativeAmount", err)
	}

	events, err := s.Events(context.Background(), 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want none", len(events))
	}
	got, err := s.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got.Records != 0 || got.NativeSpent.Sign() != 0 {
		t.Errorf("totals moved on a rejected event: %+v", got)
	}
}

func TestKVClosed(t *testing.T) {
	s := newTestKV(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := s.Append(context.Background(), testEvent(KindSpend, "0xa1", 1, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("append: %v, want ErrClosed", err)
	}
	if _, err := s.Totals(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("totals: %v, want ErrClosed", err)
	}
	if _, err := s.Events(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("events: %v, want ErrClosed", err)
	}
}

func TestKVCorruptSequenceRefusesOpen(t *testing.T) {
	db := memorydb.New()
	if err := db.Put(seqKey, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := NewKV(db); err == nil {
		t.Fatal("opened over a corrupt sequence record")
	}
}
