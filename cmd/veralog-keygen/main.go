// veralog-keygen generates the server key material veralogd expects from its
// secret store: a 32-byte HMAC signing key and a 32-byte AES-256 encryption
// key, emitted as hex along with the JSON key-file form.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func randomKey() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	must(err)
	return hex.EncodeToString(b)
}

func main() {
	out := flag.String("out", "", "optional path to write the JSON key file (printed to stdout otherwise)")
	flag.Parse()

	kf := map[string]string{
		"signingKey":    randomKey(),
		"encryptionKey": randomKey(),
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	must(err)
	b = append(b, '\n')

	if *out != "" {
		must(os.WriteFile(*out, b, 0o600))
		fmt.Printf("wrote %s\n", *out)
		return
	}
	fmt.Printf("AUDIT_SIGNING_KEY=%s\n", kf["signingKey"])
	fmt.Printf("AUDIT_ENCRYPTION_KEY=%s\n", kf["encryptionKey"])
	fmt.Printf("key file:\n%s", b)
}
