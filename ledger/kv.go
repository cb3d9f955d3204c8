// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.
//
// LevelDB-backed ledger. Events are immutable sequence-keyed records,
// wallet sightings are existence keys, and the running totals live in a
// single record; each append commits all of them in one batch.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
)

var (
	// eventPrefix is the prefix for log entries
	// eventPrefix + 8-byte big-endian sequence -> event JSON
	eventPrefix = []byte("evt-")

	// walletPrefix is the prefix for distinct-sender tracking
	// walletPrefix + sender address -> empty (existence check)
	walletPrefix = []byte("wal-")

	// totalsKey -> totals JSON
	totalsKey = []byte("totals")

	// seqKey -> 8-byte big-endian count of appended events
	seqKey = []byte("seq")
)

// eventKey returns the database key for an event sequence number.
func eventKey(seq uint64) []byte {
	return append(eventPrefix, encodeSeq(seq)...)
}

// walletKey returns the database key for a sender sighting.
func walletKey(sender common.Address) []byte {
	return append(walletPrefix, sender.Bytes()...)
}

// encodeSeq encodes a sequence number as 8 big-endian bytes, so the
// binary-alphabetical iteration order of event keys is append order.
func encodeSeq(seq uint64) []byte {
	data := make([]byte, 8)
	data[0] = byte(seq >> 56)
	data[1] = byte(seq >> 48)
	data[2] = byte(seq >> 40)
	data[3] = byte(seq >> 32)
	data[4] = byte(seq >> 24)
	data[5] = byte(seq >> 16)
	data[6] = byte(seq >> 8)
	data[7] = byte(seq)
	return data
}

// decodeSeq decodes an 8-byte big-endian sequence number.
func decodeSeq(data []byte) uint64 {
	return uint64(data[0])<<56 | uint64(data[1])<<48 | uint64(data[2])<<40 |
		uint64(data[3])<<32 | uint64(data[4])<<24 | uint64(data[5])<<16 |
		uint64(data[6])<<8 | uint64(data[7])
}

// KVStore persists the ledger in a key-value database. Unlike FileStore it
// never rewrites history on append: an event record, once written, is only
// ever read back.
type KVStore struct {
	mu     sync.Mutex
	db     ethdb.KeyValueStore
	seq    uint64
	closed bool
}

// OpenLevelDB opens or creates a LevelDB-backed ledger under dir.
func OpenLevelDB(dir string) (*KVStore, error) {
	db, err := leveldb.New(dir, 16, 16, "gastank/ledger", false)
	if err != nil {
		return nil, fmt.Errorf("ledger: open leveldb %s: %w", dir, err)
	}
	s, err := NewKV(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewKV wraps an existing key-value store as a ledger. The store must not
// be shared with another writer.
func NewKV(db ethdb.KeyValueStore) (*KVStore, error) {
	s := &KVStore{db: db}
	if ok, _ := db.Has(seqKey); ok {
		data, err := db.Get(seqKey)
		if err != nil {
			return nil, fmt.Errorf("ledger: read sequence: %w", err)
		}
		if len(data) != 8 {
			return nil, fmt.Errorf("ledger: sequence record is %d bytes, want 8", len(data))
		}
		s.seq = decodeSeq(data)
	}
	return s, nil
}

func (s *KVStore) Append(ctx context.Context, ev Event) error {
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

	totals, err := s.readTotals()
	if err != nil {
		return err
	}
	totals.NativeSpent.Add(totals.NativeSpent, native)
	totals.TokensDebited.Add(totals.TokensDebited, tokens)
	totals.Records++

	newWallet := false
	if ev.Sender != (common.Address{}) {
		if ok, _ := s.db.Has(walletKey(ev.Sender)); !ok {
			newWallet = true
			totals.Wallets++
		}
	}

	record, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ledger: marshal event: %w", err)
	}
	blob, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("ledger: marshal totals: %w", err)
	}

	// The event, the wallet sighting, the totals and the sequence land in
	// one atomic batch.
	batch := s.db.NewBatch()
	if err := batch.Put(eventKey(s.seq), record); err != nil {
		return fmt.Errorf("ledger: stage event: %w", err)
	}
	if newWallet {
		if err := batch.Put(walletKey(ev.Sender), []byte{}); err != nil {
			return fmt.Errorf("ledger: stage wallet: %w", err)
		}
	}
	if err := batch.Put(totalsKey, blob); err != nil {
		return fmt.Errorf("ledger: stage totals: %w", err)
	}
	if err := batch.Put(seqKey, encodeSeq(s.seq+1)); err != nil {
		return fmt.Errorf("ledger: stage sequence: %w", err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("ledger: commit append: %w", err)
	}
	s.seq++
	return nil
}

func (s *KVStore) Totals(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Totals{}, ErrClosed
	}
	return s.readTotals()
}

func (s *KVStore) Events(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var from uint64
	if limit > 0 && uint64(limit) < s.seq {
		from = s.seq - uint64(limit)
	}

	it := s.db.NewIterator(eventPrefix, encodeSeq(from))
	defer it.Release()

	out := make([]Event, 0, s.seq-from)
	for it.Next() {
		var ev Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			seq := decodeSeq(it.Key()[len(eventPrefix):])
			return nil, fmt.Errorf("ledger: event %d: %w", seq, err)
		}
		out = append(out, ev)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("ledger: iterate events: %w", err)
	}
	return out, nil
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("ledger: close database: %w", err)
	}
	return nil
}

// readTotals loads the totals record, or fresh zero totals for an empty
// database. Caller holds the lock.
func (s *KVStore) readTotals() (Totals, error) {
	if ok, _ := s.db.Has(totalsKey); !ok {
		return zeroTotals(), nil
	}
	blob, err := s.db.Get(totalsKey)
	if err != nil {
		return Totals{}, fmt.Errorf("ledger: read totals: %w", err)
	}
	var t Totals
	if err := json.Unmarshal(blob, &t); err != nil {
		return Totals{}, fmt.Errorf("ledger: totals record: %w", err)
	}
	return copyTotals(t), nil
}
