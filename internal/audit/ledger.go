package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/veralog/veralog/internal/keys"
)

// chainState is the in-memory cursor for the next block to append. It is
// only ever read and advanced under the ledger mutex.
type chainState struct {
	lastHash    string
	blockNumber uint64
}

// LedgerOptions tunes the append path. Zero values get defaults.
type LedgerOptions struct {
	// MaxRetries bounds insert retries for retryable store failures.
	MaxRetries int

	// RetryBackoff is the initial backoff between retries; it doubles per
	// attempt up to 2s.
	RetryBackoff time.Duration

	// Sanitizer overrides the default sanitizer (extra redaction patterns).
	Sanitizer *Sanitizer

	// Mirror, when set, receives every confirmed entry after the chain has
	// advanced (e.g. the Kafka mirror). Best-effort; it must not block.
	Mirror Mirror

	// OnAppendFailure is invoked when a fire-and-forget LogEvent loses its
	// entry to a store or crypto failure. Defaults to logging.
	OnAppendFailure func(err error, ev *AuditEvent)
}

// Ledger orchestrates Sanitizer -> Hasher -> Signer -> Cipher -> Store and
// owns the chain state. Construct one per chain at process startup with its
// dependencies injected; there is no package-level instance.
//
// Concurrent callers may invoke Append/LogEvent freely: the critical section
// from reading chain state through advancing it is serialized, which is what
// keeps block numbers contiguous and the hash chain fork-free.
type Ledger struct {
	store   Store
	keyring *keys.Keyring
	san     *Sanitizer
	opts    LedgerOptions

	mu    sync.Mutex
	ready bool
	state chainState

	now func() time.Time
}

// NewLedger builds a Ledger. Call Open before the first append.
func NewLedger(store Store, keyring *keys.Keyring, opts LedgerOptions) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	if keyring == nil {
		return nil, errors.New("audit: keyring is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	san := opts.Sanitizer
	if san == nil {
		san = NewSanitizer()
	}
	return &Ledger{
		store:   store,
		keyring: keyring,
		san:     san,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Open recovers the chain cursor from the store and moves the ledger to
// Ready. An empty store starts at block 0 with the genesis hash. Open is
// idempotent but the Uninitialized->Ready transition happens exactly once.
func (l *Ledger) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return nil
	}

	block, hash, ok, err := l.store.LastBlock(ctx)
	if err != nil {
		return fmt.Errorf("recover chain state: %w", err)
	}
	if !ok {
		l.state = chainState{lastHash: GenesisHash, blockNumber: 0}
	} else {
		l.state = chainState{lastHash: hash, blockNumber: block}
	}
	l.ready = true
	log.Printf("[audit.ledger] ready block=%d head=%.12s", l.state.blockNumber, l.state.lastHash)
	return nil
}

// Head returns the current (blockNumber, lastHash) cursor. Useful as the
// expected-previous-hash anchor for a sub-range verification.
func (l *Ledger) Head() (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.blockNumber, l.state.lastHash
}

// Append sanitizes, hashes, signs, encrypts and persists one event, then
// advances the chain. The chain never advances on a failed insert, so a
// crash between persist and advance costs at most the in-flight entry on
// restart, never a duplicate or a fork.
func (l *Ledger) Append(ctx context.Context, ev *AuditEvent) (*SecureAuditEntry, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, ErrNotReady
	}

	sanitized := l.san.Sanitize(ev)
	lg := &EntryLog{
		Category:      sanitized.Category,
		Actor:         sanitized.Actor,
		Resource:      sanitized.Resource,
		Result:        sanitized.Result,
		Origin:        sanitized.Origin,
		CorrelationID: sanitized.CorrelationID,
		Metadata:      sanitized.Metadata,
		Risk:          sanitized.Risk,
		Tags:          sanitized.Tags,
		Change:        sanitized.Change,
		Timestamp:     l.now(),
	}

	logBytes, err := LogBytes(lg)
	if err != nil {
		return nil, err
	}
	nextBlock := l.state.blockNumber + 1
	prevHash := l.state.lastHash

	hash, err := EntryDigest(logBytes, prevHash)
	if err != nil {
		return nil, err
	}
	sig, err := Sign(logBytes, hash, l.keyring.SigningKey())
	if err != nil {
		return nil, err
	}
	blob, err := Encrypt(logBytes, l.keyring.EncryptionKey())
	if err != nil {
		return nil, err
	}

	entry := &SecureAuditEntry{
		ID:           NewUUID(),
		Log:          lg,
		EncryptedLog: blob,
		BlockNumber:  nextBlock,
		PreviousHash: prevHash,
		Hash:         hash,
		Signature:    sig,
		CreatedAt:    lg.Timestamp,
	}

	if err := l.insertWithRetry(ctx, entry); err != nil {
		return nil, err
	}

	// Confirmed persistence: advance the cursor, then notify the mirror.
	l.state = chainState{lastHash: hash, blockNumber: nextBlock}
	if l.opts.Mirror != nil {
		l.opts.Mirror.Enqueue(entry)
	}
	return entry, nil
}

func (l *Ledger) insertWithRetry(ctx context.Context, entry *SecureAuditEntry) error {
	backoff := l.opts.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= l.opts.MaxRetries; attempt++ {
		lastErr = l.store.Insert(ctx, entry)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		log.Printf("[audit.ledger] insert block=%d attempt=%d/%d failed: %v",
			entry.BlockNumber, attempt, l.opts.MaxRetries, lastErr)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return lastErr
}

// LogEvent is the fire-and-forget caller-facing append. It returns an error
// only for malformed input; store and crypto failures are logged and routed
// to OnAppendFailure, never propagated into the business operation that
// produced the event.
func (l *Ledger) LogEvent(ctx context.Context, category Category, actor, resource string, result Result, metadata map[string]interface{}) (string, error) {
	ev := &AuditEvent{
		Category: category,
		Actor:    actor,
		Resource: resource,
		Result:   result,
		Metadata: metadata,
	}
	entry, err := l.Append(ctx, ev)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return "", ve
		}
		l.reportAppendFailure(err, ev)
		return "", nil
	}
	return entry.ID, nil
}

func (l *Ledger) reportAppendFailure(err error, ev *AuditEvent) {
	if l.opts.OnAppendFailure != nil {
		l.opts.OnAppendFailure(err, ev)
		return
	}
	log.Printf("[audit.ledger] append lost (category=%s actor=%s): %v", ev.Category, ev.Actor, err)
}

// RecordRetentionSweep appends the administrative event that represents a
// logical retention-policy sweep. Persisted entries are never deleted or
// edited in place; the sweep itself becomes part of the chain.
func (l *Ledger) RecordRetentionSweep(ctx context.Context, actor, policy string, through time.Time) (*SecureAuditEntry, error) {
	return l.Append(ctx, &AuditEvent{
		Category: CategoryAdmin,
		Actor:    actor,
		Resource: "retention-policy/" + policy,
		Result:   ResultSuccess,
		Risk:     RiskHigh,
		Tags:     []ComplianceTag{TagRetention},
		Metadata: map[string]interface{}{
			"sweepThrough": through.UTC().Format(time.RFC3339),
		},
	})
}
