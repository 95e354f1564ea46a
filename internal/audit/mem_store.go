package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for unit tests and local experimentation.
// It enforces the same append-only discipline as the production stores.
type MemStore struct {
	mu      sync.RWMutex
	entries map[uint64]SecureAuditEntry
	head    uint64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{entries: map[uint64]SecureAuditEntry{}}
}

func (m *MemStore) Insert(ctx context.Context, e *SecureAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.BlockNumber]; exists {
		return &StoreError{Op: "insert", Err: fmt.Errorf("block %d already persisted", e.BlockNumber)}
	}
	stored := *e
	stored.Log = nil // only the encrypted body is at rest
	m.entries[e.BlockNumber] = stored
	if e.BlockNumber > m.head {
		m.head = e.BlockNumber
	}
	return nil
}

func (m *MemStore) QueryRange(ctx context.Context, startBlock, endBlock uint64) (EntryIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if endBlock == 0 || endBlock > m.head {
		endBlock = m.head
	}
	var out []SecureAuditEntry
	for b := startBlock; b <= endBlock; b++ {
		if e, ok := m.entries[b]; ok {
			out = append(out, e)
		}
	}
	return &sliceIterator{entries: out}, nil
}

func (m *MemStore) LastBlock(ctx context.Context) (uint64, string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.head == 0 {
		return 0, "", false, nil
	}
	e := m.entries[m.head]
	return e.BlockNumber, e.Hash, true, nil
}

// Tamper mutates a stored entry in place. It exists so integrity drills and
// tests can simulate an attacker with write access to the store.
func (m *MemStore) Tamper(block uint64, mutate func(*SecureAuditEntry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[block]
	if !ok {
		return false
	}
	mutate(&e)
	m.entries[block] = e
	return true
}

// Delete removes a stored entry, simulating hostile deletion. Never part of
// the Store interface.
func (m *MemStore) Delete(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, block)
}

// sliceIterator adapts a materialized slice to the EntryIterator contract.
type sliceIterator struct {
	entries []SecureAuditEntry
	pos     int
	cur     *SecureAuditEntry
}

func (s *sliceIterator) Next() bool {
	if s.pos >= len(s.entries) {
		return false
	}
	e := s.entries[s.pos]
	s.cur = &e
	s.pos++
	return true
}

func (s *sliceIterator) Entry() *SecureAuditEntry { return s.cur }
func (s *sliceIterator) Err() error               { return nil }
func (s *sliceIterator) Close() error             { return nil }
