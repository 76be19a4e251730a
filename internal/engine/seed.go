package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const serverSeedBytes = 32

// GenerateServerSeed produces 32 cryptographically random bytes, hex encoded.
// A fresh seed is generated for every round and never reused.
func GenerateServerSeed() (string, error) {
	buf := make([]byte, serverSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashServerSeed returns the SHA-256 commitment published to the client
// before the server seed itself is revealed.
func HashServerSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}
