// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

/*
Package sponsor implements relay-sponsored gas payment in utility tokens.

A relay fronts the native-currency gas cost of smart-contract wallet
operations and recoups it from the sender in utility token units. The
package models the on-chain sponsorship contract: a two-phase
reserve/settle protocol in which no per-operation state is stored on the
contract side.

# Architecture

The protocol has three participants:

 1. TokenPaymaster - the sponsorship contract. Validate quotes and reserves,
    Settle charges. Administrative policy (rate, approvals, withdrawals) is
    gated by an injectable AdminPolicy.

 2. Reservation context - an opaque 84-byte payload minted by Validate and
    consumed exactly once by Settle for the same operation. It is the only
    state connecting the two phases, so concurrent operations from
    different senders share nothing.

 3. Collaborators - the utility token behind TokenBackend, and the single
    trusted relay that is the only permitted caller of both phases.

# Settlement Flow

	Relay calls Validate(op, opHash, maxCost)
	    1. Caller must be the registered relay
	    2. Gated deployments: sender must be approved
	    3. requiredTokens = toTokens(maxCost, rate)
	    4. Sender balance must cover requiredTokens
	    5. Context {sender, requiredTokens, opHash} returned, no funds move
	Operation executes under the host's atomicity
	Relay calls Settle(mode, context, actualCost)
	    1. Caller must be the registered relay
	    2. actualTokens = toTokens(actualCost, current rate)
	    3. finalTokens = min(actualTokens, requiredTokens)
	    4. CollectFunds deployments: move finalTokens into custody
	    5. Spend record appended for off-chain reconciliation

The conversion rate is read live at each phase. An owner rate change
between a sender's Validate and Settle is therefore observable; the min()
cap in Settle bounds the sender's exposure to the amount quoted.

# Capability Flags

  - RequireApproval: senders must be allow-listed before validation passes
  - CollectFunds: settlement moves tokens immediately instead of only
    recording spend for later reconciliation
*/
package sponsor
