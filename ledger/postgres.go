// Copyright 2025 The go-gastank Authors
// This file is part of the go-gastank library.

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	_ "github.com/lib/pq"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS gastank_events (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	kind       TEXT        NOT NULL,
	native     NUMERIC     NOT NULL,
	tokens     NUMERIC     NOT NULL,
	sender     TEXT        NOT NULL,
	op_hash    TEXT        NOT NULL,
	tx_hash    TEXT        NOT NULL
);
CREATE TABLE IF NOT EXISTS gastank_wallets (
	sender TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS gastank_totals (
	id             INT PRIMARY KEY CHECK (id = 1),
	native_spent   NUMERIC NOT NULL,
	tokens_debited NUMERIC NOT NULL,
	wallets        BIGINT  NOT NULL,
	records        BIGINT  NOT NULL
);
INSERT INTO gastank_totals (id, native_spent, tokens_debited, wallets, records)
	VALUES (1, 0, 0, 0, 0) ON CONFLICT (id) DO NOTHING;
`

// PostgresStore persists the ledger in PostgreSQL. Amounts travel as
// NUMERIC text so 256-bit values never touch a float.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, tunes the pool and bootstraps the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: bootstrap schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, ev Event) error {
	native, err := normalizeAmount(ev.Native)
	if err != nil {
		return err
	}
	tokens, err := normalizeAmount(ev.Tokens)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gastank_events (id, ts, kind, native, tokens, sender, op_hash, tx_hash)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)`,
		ev.ID, ev.Time, string(ev.Kind), native.String(), tokens.String(),
		ev.Sender.Hex(), ev.OpHash.Hex(), ev.TxHash.Hex(),
	); err != nil {
		return fmt.Errorf("ledger: insert event: %w", err)
	}

	newWallet := 0
	if ev.Sender != (common.Address{}) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO gastank_wallets (sender) VALUES ($1)
			ON CONFLICT (sender) DO NOTHING`, ev.Sender.Hex())
		if err != nil {
			return fmt.Errorf("ledger: insert wallet: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			newWallet = 1
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gastank_totals SET
			native_spent   = native_spent + $1::numeric,
			tokens_debited = tokens_debited + $2::numeric,
			wallets        = wallets + $3,
			records        = records + 1
		WHERE id = 1`,
		native.String(), tokens.String(), newWallet,
	); err != nil {
		return fmt.Errorf("ledger: update totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Totals(ctx context.Context) (Totals, error) {
	var nativeStr, tokensStr string
	t := zeroTotals()
	err := s.db.QueryRowContext(ctx, `
		SELECT native_spent::text, tokens_debited::text, wallets, records
		FROM gastank_totals WHERE id = 1`).
		Scan(&nativeStr, &tokensStr, &t.Wallets, &t.Records)
	if err != nil {
		return Totals{}, fmt.Errorf("ledger: query totals: %w", err)
	}
	if _, ok := t.NativeSpent.SetString(nativeStr, 10); !ok {
		return Totals{}, fmt.Errorf("ledger: bad native total %q", nativeStr)
	}
	if _, ok := t.TokensDebited.SetString(tokensStr, 10); !ok {
		return Totals{}, fmt.Errorf("ledger: bad token total %q", tokensStr)
	}
	return t, nil
}

func (s *PostgresStore) Events(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, ts, kind, native::text, tokens::text, sender, op_hash, tx_hash
		FROM gastank_events ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var kind, nativeStr, tokensStr, sender, opHash, txHash string
		if err := rows.Scan(&ev.ID, &ev.Time, &kind, &nativeStr, &tokensStr, &sender, &opHash, &txHash); err != nil {
			return nil, fmt.Errorf("ledger: scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.Native, _ = new(big.Int).SetString(nativeStr, 10)
		ev.Tokens, _ = new(big.Int).SetString(tokensStr, 10)
		ev.Sender = common.HexToAddress(sender)
		ev.OpHash = common.HexToHash(opHash)
		ev.TxHash = common.HexToHash(txHash)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate events: %w", err)
	}

	// Rows arrive newest first; hand them back in append order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
