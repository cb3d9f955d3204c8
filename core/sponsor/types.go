// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package sponsor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Operation is the relay-supplied request to sponsor one wallet operation.
// It is ephemeral: nothing about it is stored between the two phases.
type Operation struct {
	Sender   common.Address `json:"sender"`
	Nonce    uint64         `json:"nonce"`
	CallData []byte         `json:"callData"`
}

// OpHash computes the digest identifying an operation. Relays that already
// carry a digest may pass their own to Validate instead.
func OpHash(op *Operation) common.Hash {
	if op == nil {
		return common.Hash{}
	}
	nonce := uint256.NewInt(op.Nonce).Bytes32()
	packed := make([]byte, 0, 20+32+32)
	packed = append(packed, op.Sender.Bytes()...)
	packed = append(packed, nonce[:]...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	return common.BytesToHash(crypto.Keccak256(packed))
}

// SettleMode is the host's accounting hint for why settlement runs.
// The charge path does not depend on it.
type SettleMode uint8

const (
	SettleModeOpSucceeded SettleMode = iota // operation executed successfully
	SettleModeOpReverted                    // operation reverted, gas still owed
	SettleModeReverted                      // prior settlement attempt reverted
)

// SpendRecord is the settlement event surfaced for off-chain reconciliation.
type SpendRecord struct {
	Sender     common.Address
	NativeCost *uint256.Int
	Tokens     *uint256.Int
	OpHash     common.Hash
}

// SpendRecordTopic identifies spend-record logs emitted by on-chain builds
// of the sponsorship contract. Off-chain watchers filter on it.
var SpendRecordTopic = crypto.Keccak256Hash([]byte("SpendRecord(address,bytes32,uint256,uint256)"))

// AdminPolicy authorizes administrative calls. Injecting the policy keeps
// single-owner gating a deployment choice rather than structure.
type AdminPolicy interface {
	Authorize(caller common.Address) bool
}

// SingleOwner returns the default policy: exactly one admin address.
func SingleOwner(owner common.Address) AdminPolicy {
	return singleOwner{owner: owner}
}

type singleOwner struct {
	owner common.Address
}

func (p singleOwner) Authorize(caller common.Address) bool {
	return caller == p.owner
}
