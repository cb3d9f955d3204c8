// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package refill

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// TxSender is the slice of an RPC client the funder needs to build, sign
// and broadcast a transfer.
type TxSender interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Funder signs native transfers from the operator account.
type Funder struct {
	client  TxSender
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewFunder derives the operator address from the hex-encoded private key.
func NewFunder(client TxSender, hexKey string, chainID *big.Int) (*Funder, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("refill: operator key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("refill: chain id must be positive")
	}
	return &Funder{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Address returns the operator account transfers are sent from.
func (f *Funder) Address() common.Address {
	return f.from
}

// Send moves amount to the recipient. The operator balance is checked
// against amount plus worst-case gas before anything is signed, so an
// exhausted operator surfaces as ErrFundingExhausted instead of a doomed
// broadcast.
func (f *Funder) Send(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	nonce, err := f.client.PendingNonceAt(ctx, f.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: nonce: %v", ErrRPCUnavailable, err)
	}
	gasPrice, err := f.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas price: %v", ErrRPCUnavailable, err)
	}
	balance, err := f.client.BalanceAt(ctx, f.from, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: operator balance: %v", ErrRPCUnavailable, err)
	}
	need := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(params.TxGas))
	need.Add(need, amount)
	if balance.Cmp(need) < 0 {
		return common.Hash{}, fmt.Errorf("%w: need %s, have %s",
			ErrFundingExhausted, FormatNative(need), FormatNative(balance))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(amount),
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(f.chainID), f.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	if err := f.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: broadcast: %v", ErrRPCUnavailable, err)
	}
	return signed.Hash(), nil
}
