// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.
//
// File-backed ledger: a JSON snapshot holding totals and the event list,
// plus an append-only NDJSON journal where every line carries a sha256 of
// its record. The snapshot is the state; the journal is the audit trail.

package ledger

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// FileStore persists the ledger to a snapshot file and a journal next to it.
type FileStore struct {
	mu      sync.Mutex
	path    string
	journal *os.File
	totals  Totals
	events  []Event
	wallets []common.Address
	seen    map[common.Address]struct{}
	closed  bool
}

type fileSnapshot struct {
	Totals  Totals           `json:"totals"`
	Wallets []common.Address `json:"wallets"`
	Events  []Event          `json:"events"`
}

type journalEntry struct {
	TS     int64           `json:"ts"`
	Hash   string          `json:"hash"`
	Record json.RawMessage `json:"record"`
}

// JournalPath returns the journal filename used for a snapshot path.
func JournalPath(path string) string {
	return path + ".journal"
}

// OpenFile opens or creates a file-backed ledger at path. A snapshot that
// exists but does not parse is an error: silently starting over would break
// the monotonic-totals guarantee.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		totals: zeroTotals(),
		seen:   make(map[common.Address]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var snap fileSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("ledger: snapshot %s: %w", path, err)
		}
		s.totals = copyTotals(snap.Totals)
		s.events = snap.Events
		s.wallets = snap.Wallets
		for _, w := range snap.Wallets {
			s.seen[w] = struct{}{}
		}
	case os.IsNotExist(err):
		// Fresh ledger.
	default:
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	j, err := os.OpenFile(JournalPath(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: journal: %w", err)
	}
	s.journal = j
	return s, nil
}

func (s *FileStore) Append(ctx context.Context, ev Event) error {
	native, err := normalizeAmount(ev.Native)
	if err != nil {
		return err
	}
	tokens, err := normalizeAmount(ev.Tokens)
	if err != nil {
		return err
	}
	ev.Native = native
	ev.Tokens = tokens

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Audit line first: a record whose transfer of state later fails must
	// still be visible in the journal.
	record, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ledger: marshal event: %w", err)
	}
	sum := sha256.Sum256(record)
	line, err := json.Marshal(journalEntry{
		TS:     ev.Time.Unix(),
		Hash:   hex.EncodeToString(sum[:]),
		Record: record,
	})
	if err != nil {
		return fmt.Errorf("ledger: marshal journal line: %w", err)
	}
	if _, err := s.journal.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger: journal write: %w", err)
	}

	// Stage the new state, write the snapshot, then commit in memory.
	totals := copyTotals(s.totals)
	totals.NativeSpent.Add(totals.NativeSpent, native)
	totals.TokensDebited.Add(totals.TokensDebited, tokens)
	totals.Records++
	wallets := s.wallets
	newWallet := false
	if ev.Sender != (common.Address{}) {
		if _, ok := s.seen[ev.Sender]; !ok {
			newWallet = true
			totals.Wallets++
			wallets = append(wallets, ev.Sender)
		}
	}
	events := append(s.events, ev)

	if err := s.writeSnapshot(fileSnapshot{Totals: totals, Wallets: wallets, Events: events}); err != nil {
		return err
	}

	s.totals = totals
	s.events = events
	s.wallets = wallets
	if newWallet {
		s.seen[ev.Sender] = struct{}{}
	}
	return nil
}

// writeSnapshot replaces the snapshot atomically so a crash mid-write can
// never leave a torn state file.
func (s *FileStore) writeSnapshot(snap fileSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("ledger: snapshot write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("ledger: snapshot rename: %w", err)
	}
	return nil
}

func (s *FileStore) Totals(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Totals{}, ErrClosed
	}
	return copyTotals(s.totals), nil
}

func (s *FileStore) Events(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.journal.Close()
}

// VerifyJournal re-hashes every journal record and returns the number of
// intact lines. The first mismatch or undecodable line fails the whole scan.
func VerifyJournal(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return n, fmt.Errorf("ledger: journal line %d: %w", n+1, err)
		}
		sum := sha256.Sum256(entry.Record)
		if hex.EncodeToString(sum[:]) != entry.Hash {
			return n, fmt.Errorf("ledger: journal line %d: hash mismatch", n+1)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, err
	}
	return n, nil
}
