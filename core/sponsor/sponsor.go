// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.
//
// TokenPaymaster implements the two-phase reserve/settle protocol for
// relay-sponsored gas paid in a utility token.

package sponsor

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/HITEYY/go-gastank/core/rates"
)

var (
	ErrUnauthorized      = errors.New("caller is not authorized")
	ErrNotApproved       = errors.New("sender is not approved for sponsorship")
	ErrInsufficientFunds = errors.New("sender token balance below required tokens")
	ErrTransferFailed    = errors.New("token transfer failed")
	ErrInvalidContext    = errors.New("malformed reservation context")
	ErrInvalidRate       = errors.New("conversion rate must be positive")
)

// TokenBackend is the utility token collaborator. The sponsorship contract
// only ever needs balances and custody moves.
type TokenBackend interface {
	BalanceOf(addr common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// Config holds the deployment parameters of a token paymaster.
type Config struct {
	Address common.Address // custody address for collected tokens
	Relay   common.Address // the single trusted caller of Validate/Settle
	Admin   AdminPolicy    // gate for rate, approvals and withdrawals
	Rate    *uint256.Int   // initial token units per whole native coin

	// Capability flags collapse the deployed variants into one code path.
	RequireApproval bool // senders must be allow-listed at validate
	CollectFunds    bool // settle moves tokens immediately, not just records
}

// TokenPaymaster sponsors gas for wallet operations, charging senders in
// utility tokens. Per-operation state lives entirely in the reservation
// context returned by Validate; the struct carries only policy and counters.
type TokenPaymaster struct {
	mu       sync.RWMutex
	address  common.Address
	relay    common.Address
	admin    AdminPolicy
	tokens   TokenBackend
	rate     *uint256.Int
	approved map[common.Address]bool

	requireApproval bool
	collectFunds    bool

	// Tracking
	deposited *uint256.Int // cumulative unconditional native deposits
	collected *uint256.Int // cumulative tokens moved into custody
	settled   uint64
	spendFeed []SpendRecord
}

// New creates a token paymaster. A missing backend, admin policy or rate is
// a deployment error, not a runtime one.
func New(cfg Config, tokens TokenBackend) (*TokenPaymaster, error) {
	if tokens == nil {
		return nil, errors.New("sponsor: nil token backend")
	}
	if cfg.Admin == nil {
		return nil, errors.New("sponsor: nil admin policy")
	}
	if cfg.Rate == nil || cfg.Rate.IsZero() {
		return nil, ErrInvalidRate
	}
	return &TokenPaymaster{
		address:         cfg.Address,
		relay:           cfg.Relay,
		admin:           cfg.Admin,
		tokens:          tokens,
		rate:            new(uint256.Int).Set(cfg.Rate),
		approved:        make(map[common.Address]bool),
		requireApproval: cfg.RequireApproval,
		collectFunds:    cfg.CollectFunds,
		deposited:       new(uint256.Int),
		collected:       new(uint256.Int),
	}, nil
}

// Validate is the reservation phase. It proves the sender can cover the
// quoted maximum at the current rate and returns the opaque context that
// Settle consumes. No funds move: deferring custody to settlement means an
// abandoned operation costs the sender nothing.
func (p *TokenPaymaster) Validate(caller common.Address, op *Operation, opHash common.Hash, maxCost *uint256.Int) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if caller != p.relay {
		return nil, fmt.Errorf("%w: validate from %s", ErrUnauthorized, caller)
	}
	if op == nil {
		return nil, errors.New("sponsor: nil operation")
	}

	// Approval is checked before balance so an unapproved sender learns
	// nothing about thresholds.
	if p.requireApproval && !p.approved[op.Sender] {
		return nil, fmt.Errorf("%w: %s", ErrNotApproved, op.Sender)
	}

	required, err := rates.ToTokens(maxCost, p.rate)
	if err != nil {
		return nil, err
	}
	balance := p.tokens.BalanceOf(op.Sender)
	if balance == nil || balance.Lt(required) {
		return nil, fmt.Errorf("%w: balance %s, required %s", ErrInsufficientFunds, balance, required)
	}

	return encodeContext(op.Sender, required, opHash), nil
}

// Settle is the post-execution phase. It charges the sender for the actual
// cost, converted at the rate current now, and never more than the amount
// reserved at validation. With CollectFunds set the tokens move into
// custody immediately; a failed move aborts the call with no partial state.
func (p *TokenPaymaster) Settle(caller common.Address, mode SettleMode, context []byte, actualCost *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.relay {
		return fmt.Errorf("%w: settle from %s", ErrUnauthorized, caller)
	}
	sender, required, opHash, err := decodeContext(context)
	if err != nil {
		return err
	}

	// Live rate, not the one seen at validation. The cap below keeps a
	// mid-flight rate increase from costing the sender more than quoted.
	actualTokens, err := rates.ToTokens(actualCost, p.rate)
	if err != nil {
		return err
	}
	final := actualTokens
	if required.Lt(final) {
		final = required
	}

	if p.collectFunds {
		if err := p.tokens.Transfer(sender, p.address, final); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		p.collected.Add(p.collected, final)
	}

	cost := new(uint256.Int)
	if actualCost != nil {
		cost.Set(actualCost)
	}
	p.spendFeed = append(p.spendFeed, SpendRecord{
		Sender:     sender,
		NativeCost: cost,
		Tokens:     new(uint256.Int).Set(final),
		OpHash:     opHash,
	})
	p.settled++

	log.Debug("Settled sponsored operation",
		"sender", sender, "opHash", opHash, "tokens", final, "mode", mode)
	return nil
}

// SetConversionRate replaces the live rate. Non-positive values are
// rejected so the quote math can never be defused by a zero rate.
func (p *TokenPaymaster) SetConversionRate(caller common.Address, rate *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.admin.Authorize(caller) {
		return fmt.Errorf("%w: setConversionRate from %s", ErrUnauthorized, caller)
	}
	if rate == nil || rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	u, overflow := uint256.FromBig(rate)
	if overflow {
		return fmt.Errorf("%w: rate exceeds 256 bits", ErrInvalidRate)
	}
	p.rate = u
	log.Info("Conversion rate updated", "rate", rate)
	return nil
}

// SetApproval toggles a sender's membership in the authorization set.
func (p *TokenPaymaster) SetApproval(caller, sender common.Address, approved bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.admin.Authorize(caller) {
		return fmt.Errorf("%w: setApproval from %s", ErrUnauthorized, caller)
	}
	if approved {
		p.approved[sender] = true
	} else {
		delete(p.approved, sender)
	}
	log.Info("Sponsorship approval updated", "sender", sender, "approved", approved)
	return nil
}

// Withdraw moves collected tokens out of sponsor custody.
func (p *TokenPaymaster) Withdraw(caller, to common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.admin.Authorize(caller) {
		return fmt.Errorf("%w: withdraw from %s", ErrUnauthorized, caller)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := p.tokens.Transfer(p.address, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	log.Info("Custody withdrawal", "to", to, "amount", amount)
	return nil
}

// Deposit accepts native currency into the sponsor reserve. Anyone may fund
// the sponsor; there is nothing to gate.
func (p *TokenPaymaster) Deposit(from common.Address, amount *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount == nil {
		return
	}
	p.deposited.Add(p.deposited, amount)
	log.Debug("Native deposit", "from", from, "amount", amount)
}

// Rate returns the live conversion rate.
func (p *TokenPaymaster) Rate() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.rate)
}

// Approved reports whether a sender is in the authorization set.
func (p *TokenPaymaster) Approved(sender common.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.approved[sender]
}

// Address returns the sponsor custody address.
func (p *TokenPaymaster) Address() common.Address {
	return p.address
}

// DrainSpendRecords returns the spend records accumulated since the last
// drain and clears the feed. The replenishment controller is the intended
// single consumer, which keeps ledger writes single-writer.
func (p *TokenPaymaster) DrainSpendRecords() []SpendRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := p.spendFeed
	p.spendFeed = nil
	return records
}

// Stats returns the cumulative settlement counters.
func (p *TokenPaymaster) Stats() (settled uint64, collected, deposited *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settled, new(uint256.Int).Set(p.collected), new(uint256.Int).Set(p.deposited)
}
