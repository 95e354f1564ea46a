package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a simple file-backed store for dev and testing. Each entry is
// one JSON file named by block number, plus a head.json holding the latest
// (blockNumber, hash) cursor.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type fileHead struct {
	BlockNumber uint64 `json:"blockNumber"`
	Hash        string `json:"hash"`
}

// NewFileStore returns a FileStore and ensures the archive directory exists.
func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0o755)
	return &FileStore{dir: dir}
}

func (f *FileStore) entryPath(block uint64) string {
	return filepath.Join(f.dir, fmt.Sprintf("block_%012d.json", block))
}

func (f *FileStore) headPath() string {
	return filepath.Join(f.dir, "head.json")
}

func (f *FileStore) Insert(ctx context.Context, e *SecureAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.entryPath(e.BlockNumber)
	if _, err := os.Stat(path); err == nil {
		return &StoreError{Op: "insert", Err: fmt.Errorf("block %d already persisted", e.BlockNumber)}
	}

	// SecureAuditEntry excludes the plaintext log from JSON; only the
	// encrypted body reaches disk.
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return &StoreError{Op: "insert", Err: err}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return &StoreError{Op: "insert", Err: err, Retryable: true}
	}

	head, err := json.Marshal(fileHead{BlockNumber: e.BlockNumber, Hash: e.Hash})
	if err != nil {
		return &StoreError{Op: "insert", Err: err}
	}
	if err := os.WriteFile(f.headPath(), head, 0o644); err != nil {
		return &StoreError{Op: "insert head", Err: err, Retryable: true}
	}
	return nil
}

func (f *FileStore) QueryRange(ctx context.Context, startBlock, endBlock uint64) (EntryIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if endBlock == 0 {
		head, ok, err := f.readHead()
		if err != nil {
			return nil, &StoreError{Op: "query range", Err: err}
		}
		if !ok {
			return &sliceIterator{}, nil
		}
		endBlock = head.BlockNumber
	}

	var out []SecureAuditEntry
	for b := startBlock; b <= endBlock; b++ {
		raw, err := os.ReadFile(f.entryPath(b))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &StoreError{Op: "query range", Err: err}
		}
		var e SecureAuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, &StoreError{Op: "query range", Err: fmt.Errorf("block %d: %w", b, err)}
		}
		out = append(out, e)
	}
	return &sliceIterator{entries: out}, nil
}

func (f *FileStore) LastBlock(ctx context.Context) (uint64, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head, ok, err := f.readHead()
	if err != nil {
		return 0, "", false, &StoreError{Op: "last block", Err: err}
	}
	if !ok {
		return 0, "", false, nil
	}
	return head.BlockNumber, head.Hash, true, nil
}

func (f *FileStore) readHead() (fileHead, bool, error) {
	raw, err := os.ReadFile(f.headPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileHead{}, false, nil
		}
		return fileHead{}, false, err
	}
	var h fileHead
	if err := json.Unmarshal(raw, &h); err != nil {
		return fileHead{}, false, err
	}
	return h, true, nil
}
