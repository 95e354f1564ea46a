package keys_test

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veralog/veralog/internal/keys"
)

var (
	sigHex = strings.Repeat("ab", 32)
	encHex = strings.Repeat("cd", 32)
)

func TestLoadFromHex(t *testing.T) {
	kr, err := keys.Load(sigHex, encHex, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hex.EncodeToString(kr.SigningKey()) != sigHex {
		t.Fatalf("signing key mismatch")
	}
	if hex.EncodeToString(kr.EncryptionKey()) != encHex {
		t.Fatalf("encryption key mismatch")
	}
}

func TestLoadFromBase64(t *testing.T) {
	raw, _ := hex.DecodeString(sigHex)
	b64 := base64.StdEncoding.EncodeToString(raw)
	kr, err := keys.Load(b64, encHex, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hex.EncodeToString(kr.SigningKey()) != sigHex {
		t.Fatalf("base64 signing key mismatch")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	body := `{"signingKey":"` + sigHex + `","encryptionKey":"` + encHex + `"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	kr, err := keys.Load("", "", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hex.EncodeToString(kr.EncryptionKey()) != encHex {
		t.Fatalf("file encryption key mismatch")
	}
}

func TestLoadRejectsWrongSize(t *testing.T) {
	if _, err := keys.Load("abcd", encHex, ""); err == nil {
		t.Fatalf("expected error for short signing key")
	}
}

func TestLoadMissingKeys(t *testing.T) {
	if _, err := keys.Load("", "", ""); !errors.Is(err, keys.ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
}

func TestKeyCopiesAreIndependent(t *testing.T) {
	kr, err := keys.Load(sigHex, encHex, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	k := kr.SigningKey()
	k[0] ^= 0xff
	if hex.EncodeToString(kr.SigningKey()) != sigHex {
		t.Fatalf("mutating the returned slice changed the keyring")
	}
}
