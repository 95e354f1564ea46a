package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veralog/veralog/internal/keys"
)

// Report is read-side aggregation over a block range: counts by category,
// result and day. It consumes already-persisted entries and performs no
// integrity checks of its own; run VerifyChain first when trust matters.
type Report struct {
	StartBlock uint64                `json:"startBlock"`
	EndBlock   uint64                `json:"endBlock"`
	Total      int                   `json:"total"`
	ByCategory map[Category]int      `json:"byCategory"`
	ByResult   map[Result]int        `json:"byResult"`
	ByDay      map[string]int        `json:"byDay"` // YYYY-MM-DD -> count
	ByTag      map[ComplianceTag]int `json:"byTag"`
}

// Reporter aggregates decrypted entries from the store.
type Reporter struct {
	store   Store
	keyring *keys.Keyring
}

// NewReporter builds a Reporter over the given store and keys.
func NewReporter(store Store, keyring *keys.Keyring) *Reporter {
	return &Reporter{store: store, keyring: keyring}
}

// Aggregate builds a Report over [startBlock, endBlock] (endBlock 0 = head).
func (r *Reporter) Aggregate(ctx context.Context, startBlock, endBlock uint64) (*Report, error) {
	if startBlock == 0 {
		startBlock = 1
	}
	it, err := r.store.QueryRange(ctx, startBlock, endBlock)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer it.Close()

	encKey := r.keyring.EncryptionKey()
	rep := &Report{
		StartBlock: startBlock,
		EndBlock:   endBlock,
		ByCategory: map[Category]int{},
		ByResult:   map[Result]int{},
		ByDay:      map[string]int{},
		ByTag:      map[ComplianceTag]int{},
	}
	for it.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e := it.Entry()
		logBytes, err := Decrypt(e.EncryptedLog, encKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt block %d: %w", e.BlockNumber, err)
		}
		var lg EntryLog
		if err := json.Unmarshal(logBytes, &lg); err != nil {
			return nil, fmt.Errorf("unmarshal log for block %d: %w", e.BlockNumber, err)
		}
		rep.Total++
		rep.ByCategory[lg.Category]++
		if lg.Result != "" {
			rep.ByResult[lg.Result]++
		}
		rep.ByDay[lg.Timestamp.UTC().Format(time.DateOnly)]++
		for _, tag := range lg.Tags {
			rep.ByTag[tag]++
		}
		rep.EndBlock = e.BlockNumber
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("iterate range: %w", err)
	}
	return rep, nil
}
