package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sign computes the HMAC-SHA256 signature over canonicalLog || hashBytes
// using the server signing key. Only holders of the key can produce valid
// entries, which defends against an attacker with write access to the store.
func Sign(logBytes []byte, hashHex string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", &CryptoError{Op: "sign", Err: errors.New("signing key not available")}
	}
	hb, err := hex.DecodeString(hashHex)
	if err != nil {
		return "", &CryptoError{Op: "sign", Err: fmt.Errorf("decode hash %q: %w", hashHex, err)}
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(logBytes)
	mac.Write(hb)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the HMAC and compares it to the stored
// signature in constant time.
func VerifySignature(logBytes []byte, hashHex, signature string, key []byte) bool {
	want, err := Sign(logBytes, hashHex, key)
	if err != nil {
		return false
	}
	wantB, _ := hex.DecodeString(want)
	gotB, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(wantB, gotB)
}
