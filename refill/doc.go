// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

// Package refill keeps the sponsor's native reserve funded.
//
// A Controller polls the reserve on a fixed interval. When the balance
// falls under the configured threshold it records a ledger debit, then has
// the Funder sign and broadcast a top-up from the operator account. The
// ledger write always precedes the transfer, so a crash between the two
// over-counts spending rather than hiding it.
//
// Between polls the controller drains settled sponsorships from a
// SpendSource and reconciles them into the same ledger. The controller is
// the ledger's only writer.
package refill
