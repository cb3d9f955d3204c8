// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package refill

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/HITEYY/go-gastank/core/sponsor"
)

// SpendSource yields settled sponsorships exactly once each. The embedded
// paymaster and the on-chain log watcher both satisfy it.
type SpendSource interface {
	DrainSpends(ctx context.Context) ([]sponsor.SpendRecord, error)
}

// PaymasterSpends adapts an in-process paymaster to a SpendSource.
type PaymasterSpends struct {
	PM *sponsor.TokenPaymaster
}

func (p PaymasterSpends) DrainSpends(ctx context.Context) ([]sponsor.SpendRecord, error) {
	return p.PM.DrainSpendRecords(), nil
}

// LogFilterer is the slice of an RPC client the watcher needs.
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// ChainSpends tails SpendRecord logs emitted by a deployed sponsor
// contract. The cursor advances only after a successful scan, so an RPC
// failure never skips a block range.
type ChainSpends struct {
	client   LogFilterer
	contract common.Address
	cursor   uint64
}

// NewChainSpends starts a watcher whose next scan begins at fromBlock.
func NewChainSpends(client LogFilterer, contract common.Address, fromBlock uint64) *ChainSpends {
	return &ChainSpends{client: client, contract: contract, cursor: fromBlock}
}

func (w *ChainSpends) DrainSpends(ctx context.Context) ([]sponsor.SpendRecord, error) {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain head: %v", ErrRPCUnavailable, err)
	}
	if head < w.cursor {
		return nil, nil
	}
	logs, err := w.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.cursor),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{sponsor.SpendRecordTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: filter logs: %v", ErrRPCUnavailable, err)
	}

	var out []sponsor.SpendRecord
	for _, lg := range logs {
		rec, err := decodeSpendLog(lg)
		if err != nil {
			log.Warn("Skipping undecodable spend log", "tx", lg.TxHash, "err", err)
			continue
		}
		out = append(out, rec)
	}
	w.cursor = head + 1
	return out, nil
}

// decodeSpendLog unpacks SpendRecord(address,bytes32,uint256,uint256):
// sender and operation hash are indexed, the two amounts sit in the data.
func decodeSpendLog(lg types.Log) (sponsor.SpendRecord, error) {
	if len(lg.Topics) != 3 {
		return sponsor.SpendRecord{}, fmt.Errorf("want 3 topics, got %d", len(lg.Topics))
	}
	if len(lg.Data) != 64 {
		return sponsor.SpendRecord{}, fmt.Errorf("want 64 data bytes, got %d", len(lg.Data))
	}
	return sponsor.SpendRecord{
		Sender:     common.BytesToAddress(lg.Topics[1].Bytes()),
		OpHash:     lg.Topics[2],
		NativeCost: new(uint256.Int).SetBytes(lg.Data[:32]),
		Tokens:     new(uint256.Int).SetBytes(lg.Data[32:]),
	}, nil
}
