// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.
//
// Reservation context codec. The context is the only state linking a
// validate call to its settle call, so its shape is fixed and versionless.

package sponsor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Layout: sender (20) || required tokens (32, big endian) || operation hash (32).
const contextLen = 20 + 32 + 32

// encodeContext packs the reservation carried between validate and settle.
func encodeContext(sender common.Address, requiredTokens *uint256.Int, opHash common.Hash) []byte {
	req := requiredTokens.Bytes32()
	data := make([]byte, 0, contextLen)
	data = append(data, sender.Bytes()...)
	data = append(data, req[:]...)
	data = append(data, opHash.Bytes()...)
	return data
}

// decodeContext unpacks a reservation. Anything but an exact-length payload
// is rejected; a truncated context must never settle.
func decodeContext(data []byte) (sender common.Address, requiredTokens *uint256.Int, opHash common.Hash, err error) {
	if len(data) != contextLen {
		return common.Address{}, nil, common.Hash{}, fmt.Errorf("%w: %d bytes", ErrInvalidContext, len(data))
	}
	sender = common.BytesToAddress(data[:20])
	requiredTokens = new(uint256.Int).SetBytes(data[20:52])
	opHash = common.BytesToHash(data[52:])
	return sender, requiredTokens, opHash, nil
}
