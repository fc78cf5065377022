package credential

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Credential shape.
const (
	// Prefix starts every tenant credential.
	Prefix = "als_"

	// EntropyBytes is the number of random bytes in a credential.
	EntropyBytes = 32

	// Length is the total credential length: prefix plus 43 base64url chars.
	Length = len(Prefix) + 43
)

// Generate returns a new random credential.
func Generate() (string, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom returns a new credential using r as the entropy source.
func GenerateFrom(r io.Reader) (string, error) {
	buf := make([]byte, EntropyBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}

	raw := Prefix + base64.RawURLEncoding.EncodeToString(buf)
	if len(raw) != Length {
		return "", fmt.Errorf("generated credential has length %d, want %d", len(raw), Length)
	}
	return raw, nil
}

// WellFormed reports whether raw has the credential shape. It does no
// cryptographic work.
func WellFormed(raw string) bool {
	return len(raw) == Length && strings.HasPrefix(raw, Prefix)
}
