package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/veralog/veralog/internal/canonical"
)

// LogBytes returns the canonical serialization of a log body. Hashing,
// signing and encryption all operate on these exact bytes so the verifier
// can reproduce every digest from the decrypted blob alone.
func LogBytes(lg *EntryLog) ([]byte, error) {
	b, err := canonical.Marshal(lg)
	if err != nil {
		return nil, &CryptoError{Op: "canonicalize log", Err: err}
	}
	return b, nil
}

// EntryDigest computes the chain hash for a log: SHA-256 over
// canonicalLog || rawBytes(previousHash). previousHash is hex (the prior
// block's hash, or GenesisHash for block 1).
func EntryDigest(logBytes []byte, previousHash string) (string, error) {
	prev, err := hex.DecodeString(previousHash)
	if err != nil {
		return "", &CryptoError{Op: "decode previous hash", Err: fmt.Errorf("%q: %w", previousHash, err)}
	}
	h := sha256.New()
	h.Write(logBytes)
	h.Write(prev)
	return hex.EncodeToString(h.Sum(nil)), nil
}
