package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/veralog/veralog/internal/canonical"
)

// Mirror receives every entry after confirmed persistence. Implementations
// must not block the append path; delivery is best-effort and the store
// remains the source of truth.
type Mirror interface {
	Enqueue(e *SecureAuditEntry)
	Close() error
}

// KafkaMirror streams confirmed chain entries to a Kafka topic for SIEM
// ingestion. Entries are enqueued on a bounded buffer and produced by a
// single worker, preserving chain order on the topic; when the buffer is
// full the entry is dropped with a log line rather than stalling appends.
//
// Only the public envelope is mirrored (encrypted body, hashes, signature).
// Plaintext log bodies never leave the process through this path.
type KafkaMirror struct {
	producer Producer
	queue    chan *SecureAuditEntry

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewKafkaMirror starts the mirror worker. bufferSize <= 0 defaults to 256.
func NewKafkaMirror(producer Producer, bufferSize int) *KafkaMirror {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	m := &KafkaMirror{
		producer: producer,
		queue:    make(chan *SecureAuditEntry, bufferSize),
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Enqueue hands an entry to the mirror worker without blocking.
func (m *KafkaMirror) Enqueue(e *SecureAuditEntry) {
	select {
	case m.queue <- e:
	default:
		log.Printf("[audit.mirror] queue full, dropping block=%d id=%s", e.BlockNumber, e.ID)
	}
}

func (m *KafkaMirror) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			// Drain whatever is already queued before shutting down.
			for {
				select {
				case e := <-m.queue:
					m.produce(e)
				default:
					return
				}
			}
		case e := <-m.queue:
			m.produce(e)
		}
	}
}

func (m *KafkaMirror) produce(e *SecureAuditEntry) {
	envelope := map[string]interface{}{
		"id":           e.ID,
		"blockNumber":  e.BlockNumber,
		"previousHash": e.PreviousHash,
		"hash":         e.Hash,
		"signature":    e.Signature,
		"encryptedLog": e.EncryptedLog,
		"createdAt":    e.CreatedAt.Format(time.RFC3339Nano),
	}
	value, err := canonical.Marshal(envelope)
	if err != nil {
		log.Printf("[audit.mirror] canonicalize block=%d: %v", e.BlockNumber, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := m.producer.Produce(ctx, []byte(e.ID), value); err != nil {
		log.Printf("[audit.mirror] produce block=%d: %v", e.BlockNumber, err)
		return
	}
}

// Close stops the worker after draining the queue and closes the producer.
func (m *KafkaMirror) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return m.producer.Close()
}
