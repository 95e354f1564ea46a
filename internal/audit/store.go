package audit

import "context"

// Store is the append-only persistence abstraction the ledger writes through.
// Implementations must never mutate or delete persisted entries.
type Store interface {
	// Insert persists one entry. The chain advances only after Insert
	// returns nil; failures must be reported, never swallowed.
	Insert(ctx context.Context, e *SecureAuditEntry) error

	// QueryRange streams entries with blockNumber in [startBlock, endBlock],
	// ascending. endBlock == 0 means "through the last persisted block".
	QueryRange(ctx context.Context, startBlock, endBlock uint64) (EntryIterator, error)

	// LastBlock returns the highest persisted (blockNumber, hash).
	// ok is false for an empty store.
	LastBlock(ctx context.Context) (blockNumber uint64, hash string, ok bool, err error)
}

// EntryIterator walks a query result in ascending block order, sql.Rows
// style: Next advances, Entry returns the current row, Err reports the first
// iteration error after Next returns false.
type EntryIterator interface {
	Next() bool
	Entry() *SecureAuditEntry
	Err() error
	Close() error
}
