// Copyright 2025 The go-gastank Authors
// This file is part of go-gastank.

// gastankd keeps a deployed gas sponsor funded. It polls the sponsor's
// native reserve, tops it up from the operator account when it runs low,
// reconciles settled sponsorships from chain logs into the ledger, and
// serves status and metrics over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/HITEYY/go-gastank/api"
	"github.com/HITEYY/go-gastank/config"
	"github.com/HITEYY/go-gastank/ledger"
	"github.com/HITEYY/go-gastank/refill"
)

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	// A .env file is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Crit("Configuration incomplete", "err", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Crit("RPC dial failed", "url", cfg.RPCURL, "err", err)
	}
	defer client.Close()

	store, err := openLedger(cfg)
	if err != nil {
		log.Crit("Ledger open failed", "err", err)
	}

	funder, err := refill.NewFunder(client, cfg.OperatorKey, cfg.ChainID)
	if err != nil {
		log.Crit("Operator wallet unusable", "err", err)
	}
	log.Info("Operator wallet loaded", "address", funder.Address())

	rate, overflow := uint256.FromBig(cfg.Rate)
	if overflow {
		log.Crit("Conversion rate exceeds 256 bits", "rate", cfg.Rate)
	}

	// New spends are tailed from the current head: without a persisted
	// cursor, rescanning history would double-count into the ledger.
	head, err := client.BlockNumber(context.Background())
	if err != nil {
		log.Crit("Chain head unavailable", "err", err)
	}
	spends := refill.NewChainSpends(client, cfg.Sponsor, head)
	monitor := refill.NewMonitor(client, cfg.Sponsor, cfg.Threshold)

	ctrl, err := refill.New(refill.Config{
		Sponsor:     cfg.Sponsor,
		TopUpAmount: cfg.TopUpAmount,
		Interval:    cfg.PollInterval,
		Cooldown:    cfg.Cooldown,
	}, monitor, funder, store, spends, refill.StaticRate(rate))
	if err != nil {
		log.Crit("Controller rejected configuration", "err", err)
	}

	refill.RegisterMetrics()
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewServer(store, nil, ctrl).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Crit("HTTP server failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := ctrl.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "err", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Ledger close failed", "err", err)
	}

	if runErr != nil {
		log.Crit("Replenishment halted, operator intervention required", "err", runErr)
	}
	log.Info("Shut down cleanly")
}

func openLedger(cfg *config.Config) (ledger.Store, error) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("Using postgres ledger")
		return ledger.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	if cfg.LedgerBackend == config.BackendLevelDB {
		log.Info("Using leveldb ledger", "dir", cfg.LedgerPath)
		return ledger.OpenLevelDB(cfg.LedgerPath)
	}
	log.Info("Using file ledger", "path", cfg.LedgerPath)
	return ledger.OpenFile(cfg.LedgerPath)
}
