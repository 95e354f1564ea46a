package audit

import "time"

// GenesisHash is the fixed previousHash for block 1 of a fresh chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EntryLog is the sanitized event plus the server-assigned timestamp. Its
// canonical serialization is the exact byte sequence that is hashed, signed
// and encrypted; the three operations must all observe the same bytes.
type EntryLog struct {
	Category      Category               `json:"category"`
	Actor         string                 `json:"actor"`
	Resource      string                 `json:"resource"`
	Result        Result                 `json:"result"`
	Origin        string                 `json:"origin,omitempty"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Risk          RiskLevel              `json:"risk,omitempty"`
	Tags          []ComplianceTag        `json:"tags,omitempty"`
	Change        *ChangeSet             `json:"change,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// SecureAuditEntry is the persisted unit of the chain. Immutable once
// written; "deletion" for compliance purposes is a later administrative
// event, never an in-place edit.
type SecureAuditEntry struct {
	ID string `json:"id"`

	// Log is the plaintext log body. It is populated on the append path and
	// after an authorized decrypting read, and is deliberately excluded from
	// serialization so no store adapter can persist it in the clear.
	Log *EntryLog `json:"-"`

	// EncryptedLog is the AES-GCM blob (base64 of nonce||ciphertext) holding
	// the canonical log bytes.
	EncryptedLog string `json:"encryptedLog"`

	BlockNumber  uint64    `json:"blockNumber"`
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
	Signature    string    `json:"signature"`
	CreatedAt    time.Time `json:"createdAt"`
}
