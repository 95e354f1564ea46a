package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veralog/veralog/internal/keys"
)

// EncryptedBundle is a verified block range re-encrypted under a
// caller-supplied access key for off-system archival. The ciphertext holds
// the canonical JSON of the exported entries with their decrypted log bodies.
type EncryptedBundle struct {
	ID         string    `json:"id"`
	StartBlock uint64    `json:"startBlock"`
	EndBlock   uint64    `json:"endBlock"`
	HeadHash   string    `json:"headHash"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

// exportedEntry is one decrypted entry inside a bundle.
type exportedEntry struct {
	ID           string          `json:"id"`
	BlockNumber  uint64          `json:"blockNumber"`
	PreviousHash string          `json:"previousHash"`
	Hash         string          `json:"hash"`
	Signature    string          `json:"signature"`
	Log          json.RawMessage `json:"log"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Exporter produces encrypted bundles from verified ranges.
type Exporter struct {
	store    Store
	keyring  *keys.Keyring
	verifier *Verifier
}

// NewExporter builds an Exporter sharing the verifier's store and keys.
func NewExporter(store Store, keyring *keys.Keyring) *Exporter {
	return &Exporter{
		store:    store,
		keyring:  keyring,
		verifier: NewVerifier(store, keyring),
	}
}

// ExportRange verifies [startBlock, endBlock], decrypts the entries and
// re-encrypts them under accessKey (32 bytes). A range that fails
// verification is never exported.
func (x *Exporter) ExportRange(ctx context.Context, startBlock, endBlock uint64, accessKey []byte) (*EncryptedBundle, error) {
	res, err := x.verifier.VerifyChain(ctx, startBlock, endBlock, VerifyOptions{})
	if err != nil {
		return nil, fmt.Errorf("verify before export: %w", err)
	}
	if !res.OK {
		return nil, fmt.Errorf("refusing to export: chain broken at block %d (%s)", res.BrokenAtBlock, res.Reason)
	}
	if res.Truncated {
		return nil, fmt.Errorf("refusing to export: verification truncated at block %d", res.CheckedThrough)
	}

	it, err := x.store.QueryRange(ctx, startBlock, endBlock)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer it.Close()

	encKey := x.keyring.EncryptionKey()
	var (
		entries  []exportedEntry
		headHash string
	)
	for it.Next() {
		e := it.Entry()
		logBytes, err := Decrypt(e.EncryptedLog, encKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt block %d: %w", e.BlockNumber, err)
		}
		entries = append(entries, exportedEntry{
			ID:           e.ID,
			BlockNumber:  e.BlockNumber,
			PreviousHash: e.PreviousHash,
			Hash:         e.Hash,
			Signature:    e.Signature,
			Log:          json.RawMessage(logBytes),
			CreatedAt:    e.CreatedAt,
		})
		headHash = e.Hash
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("iterate range: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("export range [%d,%d]: %w", startBlock, endBlock, ErrNotFound)
	}

	plaintext, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	ciphertext, err := Encrypt(plaintext, accessKey)
	if err != nil {
		return nil, err
	}

	return &EncryptedBundle{
		ID:         NewUUID(),
		StartBlock: entries[0].BlockNumber,
		EndBlock:   entries[len(entries)-1].BlockNumber,
		HeadHash:   headHash,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// OpenBundle decrypts a bundle with its access key. Intended for the
// receiving archival system and for tests.
func OpenBundle(b *EncryptedBundle, accessKey []byte) ([]json.RawMessage, error) {
	plaintext, err := Decrypt(b.Ciphertext, accessKey)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Log json.RawMessage `json:"log"`
	}
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	logs := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		logs[i] = e.Log
	}
	return logs, nil
}
