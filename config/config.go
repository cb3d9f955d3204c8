// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

// Package config reads the daemon configuration from GASTANK_* environment
// variables. Required keys are reported together in one error so a fresh
// deployment fails once with the complete list, not once per key.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/HITEYY/go-gastank/refill"
)

// ErrConfigMissing wraps the names of every required key absent from the
// environment.
var ErrConfigMissing = errors.New("config: missing required environment")

const (
	defaultPollInterval = 30 * time.Second
	defaultCooldown     = 5 * time.Minute
	defaultLedgerPath   = "gastank-ledger.json"
	defaultLedgerDir    = "gastank-ledger.db"
	defaultListenAddr   = ":8650"
)

// Ledger backends selectable via GASTANK_LEDGER_BACKEND.
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// Config is everything the daemon needs to run.
type Config struct {
	RPCURL      string         // GASTANK_RPC_URL
	ChainID     *big.Int       // GASTANK_CHAIN_ID
	Sponsor     common.Address // GASTANK_SPONSOR_ADDRESS
	OperatorKey string         // GASTANK_OPERATOR_KEY, hex private key
	Rate        *big.Int       // GASTANK_RATE, token units per native coin
	Threshold   *big.Int       // GASTANK_THRESHOLD, decimal native, stored as wei
	TopUpAmount *big.Int       // GASTANK_TOPUP_AMOUNT, decimal native, stored as wei

	PollInterval  time.Duration // GASTANK_POLL_INTERVAL, default 30s
	Cooldown      time.Duration // GASTANK_TOPUP_COOLDOWN, default 5m, 0 disables
	LedgerBackend string        // GASTANK_LEDGER_BACKEND, file (default) or leveldb
	LedgerPath    string        // GASTANK_LEDGER_PATH, snapshot file or database directory
	DatabaseURL   string        // GASTANK_DATABASE_URL, postgres ledger when set, overrides the backend
	ListenAddr    string        // GASTANK_LISTEN_ADDR, default :8650
}

// FromEnv reads and validates the environment.
func FromEnv() (*Config, error) {
	var missing []string
	need := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		RPCURL:      need("GASTANK_RPC_URL"),
		OperatorKey: need("GASTANK_OPERATOR_KEY"),
		DatabaseURL: os.Getenv("GASTANK_DATABASE_URL"),
		ListenAddr:  getEnv("GASTANK_LISTEN_ADDR", defaultListenAddr),
	}
	chainID := need("GASTANK_CHAIN_ID")
	sponsorAddr := need("GASTANK_SPONSOR_ADDRESS")
	rate := need("GASTANK_RATE")
	threshold := need("GASTANK_THRESHOLD")
	topUp := need("GASTANK_TOPUP_AMOUNT")

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}

	var ok bool
	if cfg.ChainID, ok = new(big.Int).SetString(chainID, 10); !ok || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("config: GASTANK_CHAIN_ID %q: want a positive integer", chainID)
	}
	if !common.IsHexAddress(sponsorAddr) {
		return nil, fmt.Errorf("config: GASTANK_SPONSOR_ADDRESS %q: not a hex address", sponsorAddr)
	}
	cfg.Sponsor = common.HexToAddress(sponsorAddr)
	if cfg.Rate, ok = new(big.Int).SetString(rate, 10); !ok || cfg.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("config: GASTANK_RATE %q: want a positive integer", rate)
	}

	var err error
	if cfg.Threshold, err = refill.ParseNative(threshold); err != nil {
		return nil, fmt.Errorf("config: GASTANK_THRESHOLD: %v", err)
	}
	if cfg.TopUpAmount, err = refill.ParseNative(topUp); err != nil {
		return nil, fmt.Errorf("config: GASTANK_TOPUP_AMOUNT: %v", err)
	}
	if cfg.TopUpAmount.Sign() <= 0 {
		return nil, fmt.Errorf("config: GASTANK_TOPUP_AMOUNT %q: must be positive", topUp)
	}

	cfg.PollInterval = defaultPollInterval
	if v := os.Getenv("GASTANK_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: GASTANK_POLL_INTERVAL %q: want a positive duration", v)
		}
		cfg.PollInterval = d
	}
	cfg.Cooldown = defaultCooldown
	if v := os.Getenv("GASTANK_TOPUP_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("config: GASTANK_TOPUP_COOLDOWN %q: want a duration", v)
		}
		cfg.Cooldown = d
	}

	cfg.LedgerBackend = getEnv("GASTANK_LEDGER_BACKEND", BackendFile)
	switch cfg.LedgerBackend {
	case BackendFile, BackendLevelDB:
	default:
		return nil, fmt.Errorf("config: GASTANK_LEDGER_BACKEND %q: want %s or %s", cfg.LedgerBackend, BackendFile, BackendLevelDB)
	}
	cfg.LedgerPath = os.Getenv("GASTANK_LEDGER_PATH")
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = defaultLedgerPath
		if cfg.LedgerBackend == BackendLevelDB {
			cfg.LedgerPath = defaultLedgerDir
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
