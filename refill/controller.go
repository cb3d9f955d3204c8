// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package refill

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/HITEYY/go-gastank/core/rates"
	"github.com/HITEYY/go-gastank/core/sponsor"
	"github.com/HITEYY/go-gastank/ledger"
)

var (
	ErrRPCUnavailable   = errors.New("refill: rpc unavailable")
	ErrSigningFailure   = errors.New("refill: transaction signing failed")
	ErrFundingExhausted = errors.New("refill: operator funds exhausted")
)

// TopUpSender signs and broadcasts a native transfer. *Funder is the
// production implementation.
type TopUpSender interface {
	Send(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
}

// RateSource reports the live conversion rate used to price a top-up in
// token units. *sponsor.TokenPaymaster satisfies it.
type RateSource interface {
	Rate() *uint256.Int
}

// StaticRate pins a RateSource to a fixed conversion rate, for deployments
// where the daemon runs apart from the sponsor.
func StaticRate(rate *uint256.Int) RateSource {
	return staticRate{rate: new(uint256.Int).Set(rate)}
}

type staticRate struct {
	rate *uint256.Int
}

func (s staticRate) Rate() *uint256.Int {
	return new(uint256.Int).Set(s.rate)
}

// Config carries the replenishment policy.
type Config struct {
	Sponsor     common.Address // reserve account being kept funded
	TopUpAmount *big.Int       // wei sent per replenishment
	Interval    time.Duration  // poll period
	Cooldown    time.Duration  // quiet period after a broadcast top-up
}

// Controller runs the poll/replenish loop and owns all ledger writes.
type Controller struct {
	cfg    Config
	mon    *Monitor
	funder TopUpSender
	store  ledger.Store
	spends SpendSource
	rates  RateSource

	pending      []sponsor.SpendRecord
	pollFailures int
	now          func() time.Time

	statusMu    sync.Mutex // guards lastReserve and lastTopUp
	lastReserve *big.Int
	lastTopUp   time.Time
}

func New(cfg Config, mon *Monitor, funder TopUpSender, store ledger.Store, spends SpendSource, rateSrc RateSource) (*Controller, error) {
	switch {
	case mon == nil || funder == nil || store == nil || rateSrc == nil:
		return nil, errors.New("refill: monitor, funder, store and rate source are required")
	case cfg.TopUpAmount == nil || cfg.TopUpAmount.Sign() <= 0:
		return nil, errors.New("refill: top-up amount must be positive")
	case cfg.Interval <= 0:
		return nil, errors.New("refill: poll interval must be positive")
	}
	return &Controller{
		cfg:    cfg,
		mon:    mon,
		funder: funder,
		store:  store,
		spends: spends,
		rates:  rateSrc,
		now:    time.Now,
	}, nil
}

// Run polls until ctx is cancelled. It returns early only when the
// operator account cannot fund another top-up; everything less is logged
// and retried on the next tick.
func (c *Controller) Run(ctx context.Context) error {
	log.Info("Replenishment controller started",
		"sponsor", c.cfg.Sponsor,
		"threshold", FormatNative(c.mon.Threshold()),
		"topUp", FormatNative(c.cfg.TopUpAmount),
		"interval", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := c.cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Info("Replenishment controller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Snapshot is a point-in-time view of the controller for status surfaces.
// Reserve is nil until the first successful poll; LastTopUp stays zero
// until a transfer broadcasts.
type Snapshot struct {
	Reserve   *big.Int
	Threshold *big.Int
	LastTopUp time.Time
}

func (c *Controller) Snapshot() Snapshot {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	snap := Snapshot{Threshold: c.mon.Threshold(), LastTopUp: c.lastTopUp}
	if c.lastReserve != nil {
		snap.Reserve = new(big.Int).Set(c.lastReserve)
	}
	return snap
}

// cycle is one pass: reconcile spends, poll the reserve, top up if low.
func (c *Controller) cycle(ctx context.Context) error {
	c.reconcile(ctx)

	balance, err := c.mon.Poll(ctx)
	if err != nil {
		c.pollFailures++
		rpcFailuresTotal.Inc()
		log.Warn("Reserve poll failed", "failures", c.pollFailures, "err", err)
		return nil
	}
	if c.pollFailures > 0 {
		log.Info("Reserve poll recovered", "failures", c.pollFailures)
		c.pollFailures = 0
	}
	reserveGauge.Set(nativeGaugeValue(balance))
	c.statusMu.Lock()
	c.lastReserve = balance
	c.statusMu.Unlock()

	if !c.mon.Low(balance) {
		log.Debug("Reserve healthy", "balance", FormatNative(balance))
		return nil
	}
	log.Info("Reserve below threshold",
		"balance", FormatNative(balance), "threshold", FormatNative(c.mon.Threshold()))

	c.statusMu.Lock()
	last := c.lastTopUp
	c.statusMu.Unlock()
	if c.cfg.Cooldown > 0 && !last.IsZero() {
		if since := c.now().Sub(last); since < c.cfg.Cooldown {
			log.Debug("Top-up suppressed by cooldown", "since", since, "cooldown", c.cfg.Cooldown)
			return nil
		}
	}
	return c.topUp(ctx)
}

// reconcile appends drained spend records to the ledger. Records that fail
// to persist stay buffered for the next cycle.
func (c *Controller) reconcile(ctx context.Context) {
	if c.spends == nil {
		return
	}
	records, err := c.spends.DrainSpends(ctx)
	if err != nil {
		log.Warn("Spend reconciliation failed", "err", err)
	}
	c.pending = append(c.pending, records...)

	for len(c.pending) > 0 {
		rec := c.pending[0]
		ev := ledger.NewEvent(ledger.KindSpend, rec.NativeCost.ToBig(), rec.Tokens.ToBig())
		ev.Sender = rec.Sender
		ev.OpHash = rec.OpHash
		if err := c.store.Append(ctx, ev); err != nil {
			log.Warn("Spend record not persisted, will retry", "sender", rec.Sender, "err", err)
			return
		}
		spendRecordsTotal.Inc()
		c.pending = c.pending[1:]
	}
}

// topUp debits the ledger, then sends the transfer. A debit that cannot be
// written aborts the attempt: no transfer leaves without its ledger entry.
func (c *Controller) topUp(ctx context.Context) error {
	amount, overflow := uint256.FromBig(c.cfg.TopUpAmount)
	if overflow {
		log.Error("Top-up amount exceeds 256 bits", "amount", c.cfg.TopUpAmount)
		return nil
	}
	debit, err := rates.ToTokens(amount, c.rates.Rate())
	if err != nil {
		log.Error("Top-up conversion failed", "err", err)
		return nil
	}

	debitEv := ledger.NewEvent(ledger.KindTopUp, c.cfg.TopUpAmount, debit.ToBig())
	if err := c.store.Append(ctx, debitEv); err != nil {
		log.Error("Ledger debit failed, top-up aborted", "err", err)
		return nil
	}

	txHash, err := c.funder.Send(ctx, c.cfg.Sponsor, c.cfg.TopUpAmount)
	if err != nil {
		topUpFailuresTotal.Inc()
		outcome := ledger.NewEvent(ledger.KindTopUpFailed, nil, nil)
		if aerr := c.store.Append(ctx, outcome); aerr != nil {
			log.Error("Top-up failure not recorded", "err", aerr)
		}
		switch {
		case errors.Is(err, ErrFundingExhausted):
			log.Error("Operator funds exhausted, refill halted", "err", err)
			return fmt.Errorf("top-up of %s: %w", FormatNative(c.cfg.TopUpAmount), err)
		case errors.Is(err, ErrSigningFailure):
			log.Error("Top-up signing failed", "err", err)
		default:
			log.Warn("Top-up broadcast failed, will retry", "err", err)
		}
		return nil
	}

	confirm := ledger.NewEvent(ledger.KindTopUpConfirmed, nil, nil)
	confirm.TxHash = txHash
	if err := c.store.Append(ctx, confirm); err != nil {
		log.Warn("Top-up confirmation not recorded", "tx", txHash, "err", err)
	}
	topUpsTotal.Inc()
	c.statusMu.Lock()
	c.lastTopUp = c.now()
	c.statusMu.Unlock()
	log.Info("Reserve replenished",
		"tx", txHash, "amount", FormatNative(c.cfg.TopUpAmount), "tokensDebited", debit)
	return nil
}

func nativeGaugeValue(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetUint64(params.Ether),
	).Float64()
	return f
}
