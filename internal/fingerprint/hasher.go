package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hasher implements crawler.Hasher using SHA-256.
type SHA256Hasher struct{}

// Hash hashes the input and returns a 64-character hex digest.
func (SHA256Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
