package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PGStore persists chain entries into Postgres. block_number is the primary
// key, so a forked append (two writers computing the same next block) fails
// at the database even if the single-writer discipline is ever violated.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the audit_entries table if it does not exist.
func (p *PGStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS audit_entries (
  block_number  bigint PRIMARY KEY,
  id            text NOT NULL UNIQUE,
  encrypted_log text NOT NULL,
  previous_hash text NOT NULL,
  hash          text NOT NULL,
  signature     text NOT NULL,
  created_at    timestamptz NOT NULL
);
`
	_, err := p.db.ExecContext(ctx, q)
	return err
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) Insert(ctx context.Context, e *SecureAuditEntry) error {
	const q = `
		INSERT INTO audit_entries
		  (block_number, id, encrypted_log, previous_hash, hash, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := p.db.ExecContext(ctx, q,
		int64(e.BlockNumber),
		e.ID,
		e.EncryptedLog,
		e.PreviousHash,
		e.Hash,
		e.Signature,
		e.CreatedAt,
	)
	if err != nil {
		// A unique violation means the block already exists; retrying the
		// same insert cannot succeed.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return &StoreError{Op: "insert", Err: fmt.Errorf("block %d already persisted: %w", e.BlockNumber, err)}
		}
		return &StoreError{Op: "insert", Err: err, Retryable: true}
	}
	return nil
}

func (p *PGStore) QueryRange(ctx context.Context, startBlock, endBlock uint64) (EntryIterator, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if endBlock == 0 {
		const q = `
			SELECT block_number, id, encrypted_log, previous_hash, hash, signature, created_at
			FROM audit_entries WHERE block_number >= $1 ORDER BY block_number ASC`
		rows, err = p.db.QueryContext(ctx, q, int64(startBlock))
	} else {
		const q = `
			SELECT block_number, id, encrypted_log, previous_hash, hash, signature, created_at
			FROM audit_entries WHERE block_number >= $1 AND block_number <= $2 ORDER BY block_number ASC`
		rows, err = p.db.QueryContext(ctx, q, int64(startBlock), int64(endBlock))
	}
	if err != nil {
		return nil, &StoreError{Op: "query range", Err: err, Retryable: true}
	}
	return &pgIterator{rows: rows}, nil
}

func (p *PGStore) LastBlock(ctx context.Context) (uint64, string, bool, error) {
	const q = `SELECT block_number, hash FROM audit_entries ORDER BY block_number DESC LIMIT 1`
	var (
		block int64
		hash  string
	)
	if err := p.db.QueryRowContext(ctx, q).Scan(&block, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, &StoreError{Op: "last block", Err: err, Retryable: true}
	}
	return uint64(block), hash, true, nil
}

// pgIterator adapts sql.Rows to the EntryIterator contract.
type pgIterator struct {
	rows *sql.Rows
	cur  *SecureAuditEntry
	err  error
}

func (it *pgIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var (
		block int64
		e     SecureAuditEntry
	)
	if err := it.rows.Scan(&block, &e.ID, &e.EncryptedLog, &e.PreviousHash, &e.Hash, &e.Signature, &e.CreatedAt); err != nil {
		it.err = err
		return false
	}
	e.BlockNumber = uint64(block)
	it.cur = &e
	return true
}

func (it *pgIterator) Entry() *SecureAuditEntry { return it.cur }

func (it *pgIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *pgIterator) Close() error { return it.rows.Close() }
