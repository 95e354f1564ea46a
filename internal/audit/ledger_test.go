package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/veralog/veralog/internal/audit"
	"github.com/veralog/veralog/internal/keys"
)

func testKeyring(t *testing.T) *keys.Keyring {
	t.Helper()
	signing := make([]byte, keys.KeySize)
	encryption := make([]byte, keys.KeySize)
	for i := range signing {
		signing[i] = byte(i)
		encryption[i] = byte(255 - i)
	}
	kr, err := keys.New(signing, encryption)
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	return kr
}

func newTestLedger(t *testing.T, store audit.Store, opts audit.LedgerOptions) *audit.Ledger {
	t.Helper()
	l, err := audit.NewLedger(store, testKeyring(t), opts)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if err := l.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func sampleEvent(i int) *audit.AuditEvent {
	return &audit.AuditEvent{
		Category: audit.CategoryPayment,
		Actor:    fmt.Sprintf("user-%d", i),
		Resource: fmt.Sprintf("invoice/%d", i),
		Result:   audit.ResultSuccess,
		Metadata: map[string]interface{}{"seq": fmt.Sprintf("%d", i)},
	}
}

func TestAppendColdStart(t *testing.T) {
	store := audit.NewMemStore()
	l := newTestLedger(t, store, audit.LedgerOptions{})

	entry, err := l.Append(context.Background(), sampleEvent(1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.BlockNumber != 1 {
		t.Fatalf("expected block 1 on cold start, got %d", entry.BlockNumber)
	}
	if entry.PreviousHash != audit.GenesisHash {
		t.Fatalf("expected genesis previousHash, got %s", entry.PreviousHash)
	}
	if entry.ID == "" || entry.Hash == "" || entry.Signature == "" || entry.EncryptedLog == "" {
		t.Fatalf("entry missing populated fields: %+v", entry)
	}
	if entry.Log == nil || entry.Log.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned timestamp on log")
	}
}

func TestAppendChainsConsecutiveEntries(t *testing.T) {
	store := audit.NewMemStore()
	l := newTestLedger(t, store, audit.LedgerOptions{})

	var prev *audit.SecureAuditEntry
	for i := 1; i <= 5; i++ {
		entry, err := l.Append(context.Background(), sampleEvent(i))
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if prev != nil {
			if entry.BlockNumber != prev.BlockNumber+1 {
				t.Fatalf("block gap: %d after %d", entry.BlockNumber, prev.BlockNumber)
			}
			if entry.PreviousHash != prev.Hash {
				t.Fatalf("previousHash mismatch at block %d", entry.BlockNumber)
			}
		}
		prev = entry
	}

	block, head := l.Head()
	if block != 5 || head != prev.Hash {
		t.Fatalf("head mismatch: block=%d head=%s", block, head)
	}
}

func TestAppendRejectsBeforeOpen(t *testing.T) {
	l, err := audit.NewLedger(audit.NewMemStore(), testKeyring(t), audit.LedgerOptions{})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if _, err := l.Append(context.Background(), sampleEvent(1)); !errors.Is(err, audit.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestRestartResumesChain(t *testing.T) {
	store := audit.NewMemStore()
	l := newTestLedger(t, store, audit.LedgerOptions{})

	var last *audit.SecureAuditEntry
	for i := 1; i <= 10; i++ {
		entry, err := l.Append(context.Background(), sampleEvent(i))
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		last = entry
	}

	// A fresh ledger over the same store models a process restart.
	restarted := newTestLedger(t, store, audit.LedgerOptions{})
	entry, err := restarted.Append(context.Background(), sampleEvent(11))
	if err != nil {
		t.Fatalf("Append after restart: %v", err)
	}
	if entry.BlockNumber != 11 {
		t.Fatalf("expected block 11 after restart, got %d", entry.BlockNumber)
	}
	if entry.PreviousHash != last.Hash {
		t.Fatalf("expected previousHash %s, got %s", last.Hash, entry.PreviousHash)
	}
}

func TestConcurrentAppendsStayContiguous(t *testing.T) {
	store := audit.NewMemStore()
	l := newTestLedger(t, store, audit.LedgerOptions{})

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := l.Append(context.Background(), sampleEvent(w*perWorker+i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	// The persisted set of block numbers must be exactly {1..workers*perWorker}.
	it, err := store.QueryRange(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	defer it.Close()
	want := uint64(1)
	for it.Next() {
		if got := it.Entry().BlockNumber; got != want {
			t.Fatalf("expected block %d, got %d", want, got)
		}
		want++
	}
	if want != workers*perWorker+1 {
		t.Fatalf("expected %d blocks, saw %d", workers*perWorker, want-1)
	}

	// And the whole chain must verify.
	v := audit.NewVerifier(store, testKeyring(t))
	res, err := v.VerifyChain(context.Background(), 1, 0, audit.VerifyOptions{})
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !res.OK {
		t.Fatalf("chain broken at %d: %s", res.BrokenAtBlock, res.Reason)
	}
}

// flakyStore fails the first n inserts with a retryable error.
type flakyStore struct {
	*audit.MemStore
	mu       sync.Mutex
	failures int
	inserts  int
}

func (f *flakyStore) Insert(ctx context.Context, e *audit.SecureAuditEntry) error {
	f.mu.Lock()
	f.inserts++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return &audit.StoreError{Op: "insert", Err: errors.New("transient outage"), Retryable: true}
	}
	return f.MemStore.Insert(ctx, e)
}

func TestAppendRetriesRetryableStoreErrors(t *testing.T) {
	store := &flakyStore{MemStore: audit.NewMemStore(), failures: 2}
	l := newTestLedger(t, store, audit.LedgerOptions{MaxRetries: 3, RetryBackoff: 1})

	entry, err := l.Append(context.Background(), sampleEvent(1))
	if err != nil {
		t.Fatalf("Append should have succeeded after retries: %v", err)
	}
	if entry.BlockNumber != 1 {
		t.Fatalf("expected block 1, got %d", entry.BlockNumber)
	}
	if store.inserts != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", store.inserts)
	}
}

func TestFailedInsertDoesNotAdvanceChain(t *testing.T) {
	store := &flakyStore{MemStore: audit.NewMemStore(), failures: 100}
	l := newTestLedger(t, store, audit.LedgerOptions{MaxRetries: 2, RetryBackoff: 1})

	if _, err := l.Append(context.Background(), sampleEvent(1)); err == nil {
		t.Fatalf("expected append to fail")
	}
	block, head := l.Head()
	if block != 0 || head != audit.GenesisHash {
		t.Fatalf("chain advanced on failed insert: block=%d head=%s", block, head)
	}

	// Once the store recovers the next append still gets block 1.
	store.mu.Lock()
	store.failures = 0
	store.mu.Unlock()
	entry, err := l.Append(context.Background(), sampleEvent(2))
	if err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
	if entry.BlockNumber != 1 || entry.PreviousHash != audit.GenesisHash {
		t.Fatalf("unexpected resume point: block=%d prev=%s", entry.BlockNumber, entry.PreviousHash)
	}
}

func TestLogEventValidation(t *testing.T) {
	l := newTestLedger(t, audit.NewMemStore(), audit.LedgerOptions{})

	var ve *audit.ValidationError
	if _, err := l.LogEvent(context.Background(), "", "user-1", "r", audit.ResultSuccess, nil); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for missing category, got %v", err)
	}
	if _, err := l.LogEvent(context.Background(), audit.CategoryAuth, "", "r", audit.ResultSuccess, nil); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for missing actor, got %v", err)
	}
	if _, err := l.LogEvent(context.Background(), "bogus", "user-1", "r", audit.ResultSuccess, nil); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown category, got %v", err)
	}

	id, err := l.LogEvent(context.Background(), audit.CategoryAuth, "user-1", "session", audit.ResultSuccess, nil)
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if id == "" {
		t.Fatalf("expected entry id for valid event")
	}
}

func TestLogEventSwallowsDownstreamFailures(t *testing.T) {
	store := &flakyStore{MemStore: audit.NewMemStore(), failures: 100}
	var (
		mu       sync.Mutex
		captured error
	)
	l, err := audit.NewLedger(store, testKeyring(t), audit.LedgerOptions{
		MaxRetries:   1,
		RetryBackoff: 1,
		OnAppendFailure: func(err error, _ *audit.AuditEvent) {
			mu.Lock()
			captured = err
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if err := l.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	id, err := l.LogEvent(context.Background(), audit.CategoryPayment, "user-1", "charge/1", audit.ResultFailure, nil)
	if err != nil {
		t.Fatalf("LogEvent must not surface store failures, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty entry id for lost append, got %q", id)
	}
	mu.Lock()
	defer mu.Unlock()
	var se *audit.StoreError
	if !errors.As(captured, &se) {
		t.Fatalf("expected StoreError routed to OnAppendFailure, got %v", captured)
	}
}

func TestRecordRetentionSweep(t *testing.T) {
	store := audit.NewMemStore()
	l := newTestLedger(t, store, audit.LedgerOptions{})

	if _, err := l.Append(context.Background(), sampleEvent(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entry, err := l.RecordRetentionSweep(context.Background(), "compliance-bot", "pci-7y", time.Now().UTC())
	if err != nil {
		t.Fatalf("RecordRetentionSweep: %v", err)
	}
	if entry.Log.Category != audit.CategoryAdmin {
		t.Fatalf("sweep must be an admin event, got %s", entry.Log.Category)
	}
	if entry.BlockNumber != 2 {
		t.Fatalf("sweep should extend the chain, got block %d", entry.BlockNumber)
	}
}
