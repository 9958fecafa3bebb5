package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const apiKeyBytes = 32

// GenerateAPIKey returns a new hex-encoded API key and its SHA-256 digest.
// Only the digest is stored; the plaintext is handed to the caller once.
func GenerateAPIKey() (plain string, digest string, err error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	plain = hex.EncodeToString(b)
	return plain, HashAPIKey(plain), nil
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
