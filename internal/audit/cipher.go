package audit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Encrypt seals plaintext with AES-256-GCM under key. A fresh random nonce is
// drawn per call and prepended to the ciphertext; reusing a nonce under the
// same key would break confidentiality, so there is no caller-supplied-nonce
// variant. The returned blob is base64(nonce || ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("draw nonce: %w", err)}
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Authentication failure (wrong key
// or a tampered blob) is a CryptoError.
func Decrypt(blob string, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode blob: %w", err)}
	}
	ns := gcm.NonceSize()
	if len(raw) < ns {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("blob shorter than nonce")}
	}
	nonce, ciphertext := raw[:ns], raw[ns:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, &CryptoError{Op: "cipher", Err: fmt.Errorf("key must be 32 bytes, got %d", len(key))}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "cipher", Err: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: "cipher", Err: err}
	}
	return gcm, nil
}
