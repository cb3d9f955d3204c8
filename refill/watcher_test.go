// Copyright 2025 The go-gastank Authors

package refill

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/HITEYY/go-gastank/core/sponsor"
)

type mockFilterer struct {
	head    uint64
	headErr error
	logs    []types.Log
	logsErr error
	queries []ethereum.FilterQuery
}

func (m *mockFilterer) BlockNumber(ctx context.Context) (uint64, error) {
	if m.headErr != nil {
		return 0, m.headErr
	}
	return m.head, nil
}

func (m *mockFilterer) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if m.logsErr != nil {
		return nil, m.logsErr
	}
	m.queries = append(m.queries, q)
	return m.logs, nil
}

func spendLog(sender common.Address, opHash common.Hash, native, tokens *uint256.Int) types.Log {
	nb := native.Bytes32()
	tb := tokens.Bytes32()
	return types.Log{
		Topics: []common.Hash{sponsor.SpendRecordTopic, common.BytesToHash(sender.Bytes()), opHash},
		Data:   append(nb[:], tb[:]...),
	}
}

func TestChainSpendsDecodesLogs(t *testing.T) {
	sender := common.HexToAddress("0xa1")
	opHash := common.HexToHash("0x01")
	client := &mockFilterer{
		head: 100,
		logs: []types.Log{
			spendLog(sender, opHash, uint256.NewInt(8_000_000_000_000_000), uint256.NewInt(80)),
		},
	}
	contract := common.HexToAddress("0x5004")
	w := NewChainSpends(client, contract, 0)

	records, err := w.DrainSpends(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Sender != sender || rec.OpHash != opHash {
		t.Errorf("identity mangled: %+v", rec)
	}
	if rec.NativeCost.Uint64() != 8_000_000_000_000_000 || rec.Tokens.Uint64() != 80 {
		t.Errorf("amounts mangled: %s / %s", rec.NativeCost, rec.Tokens)
	}

	if len(client.queries) != 1 {
		t.Fatalf("issued %d queries, want 1", len(client.queries))
	}
	q := client.queries[0]
	if q.FromBlock.Uint64() != 0 || q.ToBlock.Uint64() != 100 {
		t.Errorf("scanned [%v, %v], want [0, 100]", q.FromBlock, q.ToBlock)
	}
	if len(q.Addresses) != 1 || q.Addresses[0] != contract {
		t.Errorf("filtered on %v, want %s", q.Addresses, contract)
	}
	if len(q.Topics) != 1 || q.Topics[0][0] != sponsor.SpendRecordTopic {
		t.Errorf("filtered on topics %v", q.Topics)
	}

	// Head unchanged: nothing new to scan, no second query.
	records, err = w.DrainSpends(context.Background())
	if err != nil || records != nil {
		t.Fatalf("idle drain: records=%v err=%v", records, err)
	}
	if len(client.queries) != 1 {
		t.Errorf("idle drain still queried logs")
	}
}

func TestChainSpendsSkipsMalformed(t *testing.T) {
	sender := common.HexToAddress("0xa1")
	good := spendLog(sender, common.HexToHash("0x01"), uint256.NewInt(1000), uint256.NewInt(1))
	short := good
	short.Topics = good.Topics[:2]
	truncated := good
	truncated.Data = good.Data[:32]

	client := &mockFilterer{head: 10, logs: []types.Log{short, good, truncated}}
	w := NewChainSpends(client, common.HexToAddress("0x5004"), 0)

	records, err := w.DrainSpends(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 1 || records[0].Sender != sender {
		t.Fatalf("malformed logs not skipped: %+v", records)
	}
}

func TestChainSpendsRPCFailureKeepsCursor(t *testing.T) {
	client := &mockFilterer{head: 50, headErr: errors.New("timeout")}
	w := NewChainSpends(client, common.HexToAddress("0x5004"), 10)

	if _, err := w.DrainSpends(context.Background()); !errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("head failure: got %v, want ErrRPCUnavailable", err)
	}

	client.headErr = nil
	client.logsErr = errors.New("timeout")
	if _, err := w.DrainSpends(context.Background()); !errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("filter failure: got %v, want ErrRPCUnavailable", err)
	}

	// After recovery the scan restarts from the untouched cursor.
	client.logsErr = nil
	if _, err := w.DrainSpends(context.Background()); err != nil {
		t.Fatalf("recovered drain: %v", err)
	}
	if got := client.queries[0].FromBlock.Uint64(); got != 10 {
		t.Errorf("recovered scan started at %d, want 10", got)
	}
}

// tokenMap is a minimal in-memory token for wiring a real paymaster.
type tokenMap map[common.Address]*uint256.Int

func (m tokenMap) BalanceOf(addr common.Address) *uint256.Int {
	if b, ok := m[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

func (m tokenMap) Transfer(from, to common.Address, amount *uint256.Int) error {
	b := m.BalanceOf(from)
	if b.Lt(amount) {
		return fmt.Errorf("balance %s below %s", b, amount)
	}
	m[from] = b.Sub(b, amount)
	m[to] = m.BalanceOf(to).Add(m.BalanceOf(to), amount)
	return nil
}

func TestPaymasterSpendsDrains(t *testing.T) {
	relay := common.HexToAddress("0x3e1a")
	sender := common.HexToAddress("0xa1")
	pm, err := sponsor.New(sponsor.Config{
		Address: common.HexToAddress("0x5004"),
		Relay:   relay,
		Admin:   sponsor.SingleOwner(common.HexToAddress("0x04de")),
		Rate:    uint256.NewInt(10000),
	}, tokenMap{sender: uint256.NewInt(1000)})
	if err != nil {
		t.Fatalf("new paymaster: %v", err)
	}

	op := &sponsor.Operation{Sender: sender, Nonce: 1}
	opHash := sponsor.OpHash(op)
	reserveCtx, err := pm.Validate(relay, op, opHash, uint256.NewInt(10_000_000_000_000_000))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := pm.Settle(relay, sponsor.SettleModeOpSucceeded, reserveCtx, uint256.NewInt(8_000_000_000_000_000)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	src := PaymasterSpends{PM: pm}
	records, err := src.DrainSpends(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Sender != sender || records[0].Tokens.Uint64() != 80 {
		t.Errorf("drained record mangled: %+v", records[0])
	}

	// A second drain is empty: records leave the feed exactly once.
	if again, _ := src.DrainSpends(context.Background()); len(again) != 0 {
		t.Errorf("records drained twice: %+v", again)
	}
}
