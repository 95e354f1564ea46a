// package keys loads the server-held signing and encryption keys from the
// external secret store boundary (environment or a mounted key file).
// Key generation and rotation are out of scope; the keyring only validates
// and holds what it is given.
package keys

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// KeySize is the required length for both the HMAC signing key and the
// AES-256 encryption key.
const KeySize = 32

var ErrKeyMissing = errors.New("keys: key not configured")

// Keyring holds the server signing (HMAC) and encryption (AES-256) keys.
// It is safe for concurrent access.
type Keyring struct {
	mtx        sync.RWMutex
	signing    []byte
	encryption []byte
}

// keyFile is the JSON shape of a mounted key file:
// { "signingKey": "<hex|base64>", "encryptionKey": "<hex|base64>" }
type keyFile struct {
	SigningKey    string `json:"signingKey"`
	EncryptionKey string `json:"encryptionKey"`
}

// New builds a Keyring from raw key material.
func New(signing, encryption []byte) (*Keyring, error) {
	if len(signing) != KeySize {
		return nil, fmt.Errorf("keys: signing key must be %d bytes, got %d", KeySize, len(signing))
	}
	if len(encryption) != KeySize {
		return nil, fmt.Errorf("keys: encryption key must be %d bytes, got %d", KeySize, len(encryption))
	}
	return &Keyring{
		signing:    append([]byte(nil), signing...),
		encryption: append([]byte(nil), encryption...),
	}, nil
}

// Load builds a Keyring from encoded key strings (hex or std base64).
// If path is non-empty it is read first and the encoded values override it.
func Load(signingEnc, encryptionEnc, path string) (*Keyring, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("keys: read key file: %w", err)
		}
		var kf keyFile
		if err := json.Unmarshal(b, &kf); err != nil {
			return nil, fmt.Errorf("keys: parse key file: %w", err)
		}
		if signingEnc == "" {
			signingEnc = kf.SigningKey
		}
		if encryptionEnc == "" {
			encryptionEnc = kf.EncryptionKey
		}
	}
	if signingEnc == "" || encryptionEnc == "" {
		return nil, ErrKeyMissing
	}

	signing, err := DecodeKey(signingEnc)
	if err != nil {
		return nil, fmt.Errorf("keys: signing key: %w", err)
	}
	encryption, err := DecodeKey(encryptionEnc)
	if err != nil {
		return nil, fmt.Errorf("keys: encryption key: %w", err)
	}
	return New(signing, encryption)
}

// DecodeKey decodes a hex- or base64-encoded key string.
func DecodeKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("not valid hex or base64")
	}
	return b, nil
}

// SigningKey returns a copy of the HMAC signing key.
func (k *Keyring) SigningKey() []byte {
	k.mtx.RLock()
	defer k.mtx.RUnlock()
	return append([]byte(nil), k.signing...)
}

// EncryptionKey returns a copy of the AES encryption key.
func (k *Keyring) EncryptionKey() []byte {
	k.mtx.RLock()
	defer k.mtx.RUnlock()
	return append([]byte(nil), k.encryption...)
}
