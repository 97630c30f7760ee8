package store

import (
	"context"
	"fmt"

	"github.com/serfrae/solder/internal/model"
)

// scanRows collects every row from rows into AccountTuples, closing
// rows before returning.
func scanRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}) ([]model.AccountTuple, error) {
	defer rows.Close()
	var out []model.AccountTuple
	for rows.Next() {
		var t model.AccountTuple
		if err := rows.Scan(&t.Blockhash, &t.Slot, &t.BlockTime, &t.Signature, &t.Account); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// BySignature returns every tuple committed under signature.
func (s *Store) BySignature(ctx context.Context, signature string) ([]model.AccountTuple, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blockhash, slot, block_time, signature, account
		 FROM transaction_accounts WHERE signature = $1 ORDER BY signature ASC`,
		signature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	return scanRows(rows)
}

// ByAccount returns every tuple touching account, optionally bounded
// by block_time >= from and/or block_time <= to (either may be nil to
// leave that bound open).
func (s *Store) ByAccount(ctx context.Context, account string, from, to *int64) ([]model.AccountTuple, error) {
	query := `SELECT blockhash, slot, block_time, signature, account
	          FROM transaction_accounts WHERE account = $1`
	args := []any{account}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND block_time >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND block_time <= $%d", len(args))
	}
	query += " ORDER BY signature ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	return scanRows(rows)
}

// ByBlockhash returns every tuple from the block identified by
// blockhash, ordered by slot.
func (s *Store) ByBlockhash(ctx context.Context, blockhash string) ([]model.AccountTuple, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blockhash, slot, block_time, signature, account
		 FROM transaction_accounts WHERE blockhash = $1 ORDER BY slot ASC`,
		blockhash)
	if err != nil {
		return nil, fmt.Errorf("query by blockhash: %w", err)
	}
	return scanRows(rows)
}

// BySlot returns every tuple committed at slot.
func (s *Store) BySlot(ctx context.Context, slot int64) ([]model.AccountTuple, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blockhash, slot, block_time, signature, account
		 FROM transaction_accounts WHERE slot = $1 ORDER BY slot ASC`,
		slot)
	if err != nil {
		return nil, fmt.Errorf("query by slot: %w", err)
	}
	return scanRows(rows)
}
