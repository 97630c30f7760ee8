// Package store owns the relational connection pool and the
// transactional batch writer: the transaction_accounts schema and its
// indexed read paths.
//
// Grounded on the pgxpool Acquire/Begin/Exec/Commit usage pattern attested in the
// retrieval pack's marketdata pipeline example
// (other_examples/27819f33_Andrew50-peripheral_.../pipeline.go), the
// closest in-pack precedent for a pgx-backed bulk writer; the teacher
// itself carries no relational-database dependency (it persists state
// to a pebble/leveldb trie store), so pgx/v5 is an out-of-teacher,
// in-pack grounded addition (see DESIGN.md).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serfrae/solder/internal/apperror"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/metrics"
	"github.com/serfrae/solder/internal/model"
)

// acquireTimeout bounds how long a writer waits for a pooled
// connection before surfacing a pool-exhaustion error.
const acquireTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS transaction_accounts (
	blockhash  TEXT NOT NULL,
	slot       BIGINT NOT NULL,
	block_time BIGINT NOT NULL,
	signature  TEXT NOT NULL,
	account    TEXT NOT NULL,
	PRIMARY KEY (blockhash, signature, account)
);
CREATE INDEX IF NOT EXISTS transaction_accounts_signature_idx ON transaction_accounts (signature);
CREATE INDEX IF NOT EXISTS transaction_accounts_account_idx ON transaction_accounts (account);
CREATE INDEX IF NOT EXISTS transaction_accounts_slot_idx ON transaction_accounts (slot);
CREATE INDEX IF NOT EXISTS transaction_accounts_blockhash_idx ON transaction_accounts (blockhash);
`

// Store owns the database pool and implements both the write path
// (WriteBatch, called by the WriterPool) and the read path (lookup by
// signature, account, blockhash, and slot).
type Store struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, poolSize int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = poolSize
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	s := &Store{pool: pool, log: logging.Root().With("component", "store")}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WriteBatch persists every tuple in b inside a single transaction. A
// connection-acquire failure is retried exactly once; a commit failure
// rolls back and drops the batch without retry.
func (s *Store) WriteBatch(ctx context.Context, b model.Batch) error {
	err := s.writeOnce(ctx, b)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.PoolExhausted) {
		return err
	}

	s.log.Warn("pool exhausted, retrying batch once", "blockhash", b.Blockhash)
	err = s.writeOnce(ctx, b)
	if err != nil {
		metrics.BatchesDropped.WithLabelValues("pool_exhausted").Inc()
		return err
	}
	return nil
}

func (s *Store) writeOnce(ctx context.Context, b model.Batch) error {
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return apperror.Wrap(apperror.PoolExhausted, "acquire connection", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return apperror.Wrap(apperror.DBOther, "begin transaction", err)
	}

	for _, t := range b.Tuples {
		_, err := tx.Exec(ctx,
			`INSERT INTO transaction_accounts (blockhash, slot, block_time, signature, account)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (blockhash, signature, account) DO NOTHING`,
			t.Blockhash, t.Slot, t.BlockTime, t.Signature, t.Account,
		)
		if err != nil && !isUniqueViolation(err) {
			_ = tx.Rollback(ctx)
			s.log.Error("insert failed, rolling back batch", "blockhash", b.Blockhash, "err", err)
			metrics.BatchesDropped.WithLabelValues("insert_error").Inc()
			return apperror.Wrap(apperror.DBOther, "insert tuple", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		s.log.Error("commit failed, dropping batch", "blockhash", b.Blockhash, "err", err)
		metrics.BatchesDropped.WithLabelValues("commit_error").Inc()
		return apperror.Wrap(apperror.DBOther, "commit batch", err)
	}

	metrics.BatchesWritten.Inc()
	metrics.RowsWritten.Add(float64(len(b.Tuples)))
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
